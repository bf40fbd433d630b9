package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/availability"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/locking"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/outbox"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateBooking books req on the best matching connection.
//
// The requested window must be free on every active connection. If it is not, no write
// is attempted and the returned error is a *ConflictError (inside an *OpError) whose
// alternatives are also set on the result. The window is leased per connection while
// the check and write run, so concurrent bookings of one window are serialized. Work
// under the lease is cut off before the lease expires.
func (o *Orchestrator) CreateBooking(ctx context.Context, tenant model.TenantCalendars, req model.BookingRequest, preferred model.Provider) (model.BookingResult, error) {
	const op = "create_booking"
	ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("tenant.id", tenant.TenantID)))
	defer span.End()

	req, err := o.validateBooking(tenant, req)
	if err != nil {
		return failed(err), opError(op, tenant, "", err)
	}
	conn, ok := SelectOptimalConnection(tenant.Connections, req.Service.PreferredStaff, preferred)
	if !ok {
		err := &ConfigurationError{Reason: "no active calendar connections"}
		return failed(err), opError(op, tenant, "", err)
	}
	span.SetAttributes(attribute.String("connection.id", conn.ID), attribute.String("provider", string(conn.Provider)))

	start, end := req.Window()
	lease, err := locking.Acquire(ctx, o.locker, locking.WindowKeys("booking:"+conn.ID, start, end, o.cfg.LockBucket), locking.Options{
		TTL:  o.cfg.LockTTL,
		Wait: o.cfg.LockWait,
	})
	if err != nil {
		if errors.Is(err, locking.ErrBusy) {
			err = ErrBookingInProgress
		}
		return failed(err), opError(op, tenant, conn.ID, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("booking lease release failed", "tenant_id", tenant.TenantID, "connection_id", conn.ID, "err", err)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.leaseBudget())
	defer cancel()

	active := tenant.ActiveConnections()
	window := o.unifiedAvailability(ctx, op, tenant, active, AvailabilityQuery{
		TimeMin:      start,
		TimeMax:      end,
		Timezone:     req.Timezone,
		SlotDuration: req.Service.Duration,
	})
	if len(window.Slots) == 0 && len(window.Degraded) > 0 {
		return failed(ErrAvailabilityUnknown), opError(op, tenant, conn.ID, ErrAvailabilityUnknown)
	}
	if !availability.AllAvailable(window.Slots) {
		alts := o.alternatives(ctx, op, tenant, active, req)
		err := &ConflictError{Alternatives: alts}
		res := failed(err)
		res.Alternatives = alts
		return res, opError(op, tenant, conn.ID, err)
	}

	client, err := o.open(conn)
	if err != nil {
		return failed(err), opError(op, tenant, conn.ID, err)
	}
	pres, err := client.CreateBooking(ctx, conn.CalendarID, req)
	if err != nil {
		o.logger.Error("booking failed", "tenant_id", tenant.TenantID, "connection_id", conn.ID, "provider", conn.Provider, "err", err)
		return failed(err), opError(op, tenant, conn.ID, err)
	}
	if !pres.Success || pres.Event == nil {
		for i := range pres.Alternatives {
			pres.Alternatives[i].ConnectionID = conn.ID
			pres.Alternatives[i].StaffMemberID = conn.StaffMemberID
		}
		alts := availability.Merge(pres.Alternatives)
		err := &ConflictError{Alternatives: alts}
		res := failed(err)
		res.Alternatives = alts
		return res, opError(op, tenant, conn.ID, err)
	}

	event := model.Unify(*pres.Event, conn)
	evt, err := outbox.NewEvent(outbox.TopicBookingCreated, outbox.AggregateBooking, conn.ID+":"+event.ID, outbox.BookingCreated{
		TenantID:         tenant.TenantID,
		ConnectionID:     conn.ID,
		Provider:         string(conn.Provider),
		CalendarID:       conn.CalendarID,
		EventID:          event.ID,
		StaffMemberID:    conn.StaffMemberID,
		Service:          req.Service.Name,
		CustomerName:     req.Customer.Name,
		CustomerEmail:    req.Customer.Email,
		Start:            event.Start,
		End:              event.End,
		OnlineMeetingURL: event.OnlineMeetingURL,
	})
	o.record(ctx, evt, err)
	o.logger.Info("booking created", "tenant_id", tenant.TenantID, "connection_id", conn.ID, "provider", conn.Provider, "event_id", event.ID)
	return model.BookingResult{Success: true, Event: &event}, nil
}

func failed(err error) model.BookingResult {
	return model.BookingResult{Success: false, Error: err.Error()}
}

func (o *Orchestrator) validateBooking(tenant model.TenantCalendars, req model.BookingRequest) (model.BookingRequest, error) {
	req.Service.Name = strings.TrimSpace(req.Service.Name)
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	switch {
	case req.Service.Name == "":
		return req, &ValidationError{Field: "service", Reason: "name is required"}
	case req.Service.Duration <= 0:
		return req, &ValidationError{Field: "service", Reason: "duration must be positive"}
	case req.Customer.Name == "":
		return req, &ValidationError{Field: "customer", Reason: "name is required"}
	case req.PreferredStart.IsZero():
		return req, &ValidationError{Field: "preferred_datetime", Reason: "is required"}
	}
	if req.Timezone == "" {
		req.Timezone = tenant.Timezone
	}
	if _, err := providers.LoadLocation(req.Timezone); err != nil {
		return req, &ValidationError{Field: "timezone", Reason: err.Error()}
	}
	return req, nil
}

// alternatives searches the look-ahead window from the requested start in steps of the
// service duration and keeps the first available slots that are not in the past.
func (o *Orchestrator) alternatives(ctx context.Context, op string, tenant model.TenantCalendars, conns []model.CalendarConnection, req model.BookingRequest) []model.UnifiedAvailabilitySlot {
	ahead := o.unifiedAvailability(ctx, op+".alternatives", tenant, conns, AvailabilityQuery{
		TimeMin:      req.PreferredStart,
		TimeMax:      req.PreferredStart.Add(o.cfg.LookAhead),
		Timezone:     req.Timezone,
		SlotDuration: req.Service.Duration,
	})
	return availability.FirstAvailable(ahead.Slots, o.now(), o.cfg.MaxAlternatives)
}

// CancelBooking deletes eventID from the connection's calendar. The connection does not
// have to be active; ownership of the event is left to the provider to enforce.
func (o *Orchestrator) CancelBooking(ctx context.Context, tenant model.TenantCalendars, connectionID, eventID string) error {
	const op = "cancel_booking"
	ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("tenant.id", tenant.TenantID),
		attribute.String("connection.id", connectionID),
	))
	defer span.End()

	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return opError(op, tenant, connectionID, &ValidationError{Field: "event_id", Reason: "is required"})
	}
	conn, ok := tenant.Connection(connectionID)
	if !ok {
		return opError(op, tenant, connectionID, &ConfigurationError{Reason: "unknown connection " + connectionID})
	}
	client, err := o.open(conn)
	if err != nil {
		return opError(op, tenant, conn.ID, err)
	}
	if err := client.DeleteEvent(ctx, conn.CalendarID, eventID); err != nil {
		o.logger.Error("cancel failed", "tenant_id", tenant.TenantID, "connection_id", conn.ID, "provider", conn.Provider, "event_id", eventID, "err", err)
		return opError(op, tenant, conn.ID, err)
	}

	evt, err := outbox.NewEvent(outbox.TopicBookingCancelled, outbox.AggregateBooking, conn.ID+":"+eventID, outbox.BookingCancelled{
		TenantID:     tenant.TenantID,
		ConnectionID: conn.ID,
		Provider:     string(conn.Provider),
		CalendarID:   conn.CalendarID,
		EventID:      eventID,
		CancelledAt:  o.now().UTC(),
	})
	o.record(ctx, evt, err)
	o.logger.Info("booking cancelled", "tenant_id", tenant.TenantID, "connection_id", conn.ID, "event_id", eventID)
	return nil
}
