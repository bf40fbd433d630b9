package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/calendarhub/libs/httpx"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/orchestrator"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/registry"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/wire"
)

// Engine is the orchestration surface the HTTP API drives.
type Engine interface {
	CheckUnifiedAvailability(ctx context.Context, tenant model.TenantCalendars, q orchestrator.AvailabilityQuery) (orchestrator.UnifiedAvailability, error)
	CreateBooking(ctx context.Context, tenant model.TenantCalendars, req model.BookingRequest, preferred model.Provider) (model.BookingResult, error)
	CancelBooking(ctx context.Context, tenant model.TenantCalendars, connectionID, eventID string) error
	ListUnifiedEvents(ctx context.Context, tenant model.TenantCalendars, q orchestrator.ListQuery) (orchestrator.UnifiedEvents, error)
	HealthCheck(ctx context.Context, tenant model.TenantCalendars) model.HealthReport
	Provider(name model.Provider) (providers.Provider, bool)
}

type Handler struct {
	engine   Engine
	registry registry.Registry
	logger   *slog.Logger
}

func NewHandler(engine Engine, reg registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, registry: reg, logger: logger}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/bookings", h.CreateBooking)
	mux.HandleFunc("/api/v1/bookings/cancel", h.CancelBooking)
	mux.HandleFunc("/api/v1/events", h.ListEvents)
	mux.HandleFunc("/api/v1/calendars/health", h.Health)
	mux.HandleFunc("/api/v1/connections", h.ListConnections)
	mux.HandleFunc("/api/v1/connections/auth-url", h.AuthURL)
	mux.HandleFunc("/api/v1/connections/link", h.LinkConnection)
	mux.HandleFunc("/api/v1/connections/deactivate", h.DeactivateConnection)
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	timeMin, err := parseTime(q.Get("time_min"))
	if err != nil {
		http.Error(w, "invalid time_min", http.StatusBadRequest)
		return
	}
	timeMax, err := parseTime(q.Get("time_max"))
	if err != nil {
		http.Error(w, "invalid time_max", http.StatusBadRequest)
		return
	}
	slotMinutes, err := parseOptionalInt(q.Get("slot_minutes"))
	if err != nil || slotMinutes < 0 {
		http.Error(w, "invalid slot_minutes", http.StatusBadRequest)
		return
	}

	tenant, ok := h.tenant(w, r, q.Get("timezone"))
	if !ok {
		return
	}
	req := wire.AvailabilityRequest{TimeMin: timeMin, TimeMax: timeMax, Timezone: q.Get("timezone"), SlotMinutes: slotMinutes}
	res, err := h.engine.CheckUnifiedAvailability(r.Context(), tenant, req.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.AvailabilityResponse{Slots: wire.FromSlots(res.Slots), DegradedConnections: res.Degraded})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req wire.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	booking, preferred, err := req.Booking()
	if err != nil {
		h.writeError(w, err)
		return
	}
	tenant, ok := h.tenant(w, r, req.Timezone)
	if !ok {
		return
	}

	res, err := h.engine.CreateBooking(r.Context(), tenant, booking, preferred)
	resp := wire.FromBookingResult(res, err)
	if err != nil {
		h.logFailure(r, "create booking", err)
		writeJSON(w, statusFor(resp.Kind), resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req wire.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ConnectionID = strings.TrimSpace(req.ConnectionID)
	if req.ConnectionID == "" || strings.TrimSpace(req.EventID) == "" {
		http.Error(w, "connection_id and event_id are required", http.StatusBadRequest)
		return
	}
	tenant, ok := h.tenant(w, r, "")
	if !ok {
		return
	}

	if err := h.engine.CancelBooking(r.Context(), tenant, req.ConnectionID, req.EventID); err != nil {
		h.logFailure(r, "cancel booking", err)
		kind := wire.Kind(err)
		writeJSON(w, statusFor(kind), wire.CancelResponse{Success: false, Error: err.Error(), Kind: kind})
		return
	}
	writeJSON(w, http.StatusOK, wire.CancelResponse{Success: true})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	var (
		req wire.ListEventsRequest
		err error
	)
	if v := q.Get("time_min"); v != "" {
		if req.TimeMin, err = parseTime(v); err != nil {
			http.Error(w, "invalid time_min", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("time_max"); v != "" {
		if req.TimeMax, err = parseTime(v); err != nil {
			http.Error(w, "invalid time_max", http.StatusBadRequest)
			return
		}
	}
	if req.MaxResults, err = parseOptionalInt(q.Get("max_results")); err != nil || req.MaxResults < 0 {
		http.Error(w, "invalid max_results", http.StatusBadRequest)
		return
	}
	tenant, ok := h.tenant(w, r, "")
	if !ok {
		return
	}

	res, err := h.engine.ListUnifiedEvents(r.Context(), tenant, req.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.ListEventsResponse{Events: wire.FromEvents(res.Events), DegradedConnections: res.Degraded})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant, ok := h.tenant(w, r, "")
	if !ok {
		return
	}
	rep := h.engine.HealthCheck(r.Context(), tenant)
	writeJSON(w, http.StatusOK, wire.FromHealth(rep))
}

// tenant resolves the caller's tenant and loads its connections.
func (h *Handler) tenant(w http.ResponseWriter, r *http.Request, timezone string) (model.TenantCalendars, bool) {
	tenantID := tenantID(r)
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return model.TenantCalendars{}, false
	}
	tenant, err := registry.Tenant(r.Context(), h.registry, tenantID, timezone)
	if err != nil {
		h.logger.Error("load tenant connections failed", "tenant_id", tenantID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return model.TenantCalendars{}, false
	}
	return tenant, true
}

func tenantID(r *http.Request) string {
	if id := httpx.TenantIDFromContext(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(httpx.TenantIDHeader))
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(v))
}

func parseOptionalInt(v string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}
