// Package grpcserver exposes the orchestration engine over gRPC. Messages are the
// wire structs encoded with the JSON codec, so no generated stubs are needed.
package grpcserver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/calendarhub/libs/grpcx"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/orchestrator"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/registry"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "calendarhub.engine.v1.CalendarEngine"

type Engine interface {
	CheckUnifiedAvailability(ctx context.Context, tenant model.TenantCalendars, q orchestrator.AvailabilityQuery) (orchestrator.UnifiedAvailability, error)
	CreateBooking(ctx context.Context, tenant model.TenantCalendars, req model.BookingRequest, preferred model.Provider) (model.BookingResult, error)
	CancelBooking(ctx context.Context, tenant model.TenantCalendars, connectionID, eventID string) error
	ListUnifiedEvents(ctx context.Context, tenant model.TenantCalendars, q orchestrator.ListQuery) (orchestrator.UnifiedEvents, error)
	HealthCheck(ctx context.Context, tenant model.TenantCalendars) model.HealthReport
}

type server struct {
	engine   Engine
	registry registry.Registry
	logger   *slog.Logger
}

func Register(grpcServer *grpc.Server, engine Engine, reg registry.Registry, logger *slog.Logger) {
	grpcServer.RegisterService(&serviceDesc, &server{engine: engine, registry: reg, logger: logger})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: unary("CheckAvailability", (*server).checkAvailability)},
		{MethodName: "CreateBooking", Handler: unary("CreateBooking", (*server).createBooking)},
		{MethodName: "CancelBooking", Handler: unary("CancelBooking", (*server).cancelBooking)},
		{MethodName: "ListEvents", Handler: unary("ListEvents", (*server).listEvents)},
		{MethodName: "HealthCheck", Handler: unary("HealthCheck", (*server).healthCheck)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "calendarhub/engine/v1/engine.json",
}

// unary adapts a typed method to grpc's MethodDesc handler shape.
func unary[Req, Resp any](method string, fn func(*server, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, status.Error(codes.InvalidArgument, wire.KindValidation+": decode request: "+err.Error())
		}
		s := srv.(*server)
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(s, ctx, req.(*Req))
		})
	}
}

func (s *server) checkAvailability(ctx context.Context, req *wire.AvailabilityRequest) (*wire.AvailabilityResponse, error) {
	tenant, err := s.tenant(ctx, req.TenantID, req.Timezone)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.CheckUnifiedAvailability(ctx, tenant, req.Query())
	if err != nil {
		return nil, s.statusError(ctx, "CheckAvailability", err)
	}
	return &wire.AvailabilityResponse{Slots: wire.FromSlots(res.Slots), DegradedConnections: res.Degraded}, nil
}

// createBooking reports conflicts in the response body; the alternatives are part of the result.
func (s *server) createBooking(ctx context.Context, req *wire.BookingRequest) (*wire.BookingResponse, error) {
	booking, preferred, err := req.Booking()
	if err != nil {
		return nil, s.statusError(ctx, "CreateBooking", err)
	}
	tenant, err := s.tenant(ctx, req.TenantID, req.Timezone)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.CreateBooking(ctx, tenant, booking, preferred)
	resp := wire.FromBookingResult(res, err)
	if err != nil && resp.Kind != wire.KindConflict {
		return nil, s.statusError(ctx, "CreateBooking", err)
	}
	return &resp, nil
}

func (s *server) cancelBooking(ctx context.Context, req *wire.CancelRequest) (*wire.CancelResponse, error) {
	if strings.TrimSpace(req.ConnectionID) == "" || strings.TrimSpace(req.EventID) == "" {
		return nil, status.Error(codes.InvalidArgument, wire.KindValidation+": connection_id and event_id are required")
	}
	tenant, err := s.tenant(ctx, req.TenantID, "")
	if err != nil {
		return nil, err
	}
	if err := s.engine.CancelBooking(ctx, tenant, req.ConnectionID, req.EventID); err != nil {
		return nil, s.statusError(ctx, "CancelBooking", err)
	}
	return &wire.CancelResponse{Success: true}, nil
}

func (s *server) listEvents(ctx context.Context, req *wire.ListEventsRequest) (*wire.ListEventsResponse, error) {
	tenant, err := s.tenant(ctx, req.TenantID, "")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.ListUnifiedEvents(ctx, tenant, req.Query())
	if err != nil {
		return nil, s.statusError(ctx, "ListEvents", err)
	}
	return &wire.ListEventsResponse{Events: wire.FromEvents(res.Events), DegradedConnections: res.Degraded}, nil
}

func (s *server) healthCheck(ctx context.Context, req *wire.HealthRequest) (*wire.HealthResponse, error) {
	tenant, err := s.tenant(ctx, req.TenantID, "")
	if err != nil {
		return nil, err
	}
	resp := wire.FromHealth(s.engine.HealthCheck(ctx, tenant))
	return &resp, nil
}

func (s *server) tenant(ctx context.Context, tenantID, timezone string) (model.TenantCalendars, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return model.TenantCalendars{}, status.Error(codes.InvalidArgument, wire.KindValidation+": tenant_id is required")
	}
	tenant, err := registry.Tenant(ctx, s.registry, tenantID, timezone)
	if err != nil {
		s.logger.Error("load tenant connections failed", "tenant_id", tenantID, "request_id", grpcx.RequestIDFromContext(ctx), "err", err)
		return model.TenantCalendars{}, status.Error(codes.Internal, wire.KindInternal+": load connections")
	}
	return tenant, nil
}

func (s *server) statusError(ctx context.Context, method string, err error) error {
	kind := wire.Kind(err)
	code := codeFor(kind)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.Error("rpc failed", "method", method, "kind", kind, "request_id", grpcx.RequestIDFromContext(ctx), "err", err)
	}
	return status.Error(code, kind+": "+err.Error())
}

func codeFor(kind string) codes.Code {
	switch kind {
	case wire.KindValidation:
		return codes.InvalidArgument
	case wire.KindConfiguration, wire.KindAuth:
		return codes.FailedPrecondition
	case wire.KindConflict:
		return codes.AlreadyExists
	case wire.KindBusy:
		return codes.Aborted
	case wire.KindNotFound:
		return codes.NotFound
	case wire.KindProvider, wire.KindUnavailable:
		return codes.Unavailable
	case wire.KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
