package handlers

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/wire"
)

func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantID(r)
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}
	conns, err := h.registry.ListConnections(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("list connections failed", "tenant_id", tenantID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	resp := wire.ConnectionsResponse{Connections: make([]wire.Connection, 0, len(conns))}
	for _, c := range conns {
		resp.Connections = append(resp.Connections, wire.FromConnection(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AuthURL returns the consent URL for linking a calendar. A state is generated when the caller has none.
func (h *Handler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if tenantID(r) == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}
	name, ok := model.ParseProvider(r.URL.Query().Get("provider"))
	if !ok {
		http.Error(w, "unknown provider", http.StatusBadRequest)
		return
	}
	p, ok := h.engine.Provider(name)
	if !ok {
		http.Error(w, "provider not configured", http.StatusUnprocessableEntity)
		return
	}
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" {
		state = uuid.NewString()
	}
	writeJSON(w, http.StatusOK, wire.AuthURLResponse{Provider: string(name), URL: p.AuthCodeURL(state)})
}

// LinkConnection exchanges an authorization code and stores the resulting connection.
func (h *Handler) LinkConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantID(r)
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}
	var req wire.LinkConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	name, ok := model.ParseProvider(req.Provider)
	if !ok {
		http.Error(w, "unknown provider", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	p, ok := h.engine.Provider(name)
	if !ok {
		http.Error(w, "provider not configured", http.StatusUnprocessableEntity)
		return
	}

	creds, err := p.Exchange(r.Context(), req.Code)
	if err != nil {
		h.logFailure(r, "link connection", err)
		h.writeError(w, err)
		return
	}
	calendarID := strings.TrimSpace(req.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	conn, err := h.registry.SaveConnection(r.Context(), model.CalendarConnection{
		TenantID:      tenantID,
		Provider:      name,
		CalendarID:    calendarID,
		DisplayName:   req.DisplayName,
		StaffMemberID: req.StaffMemberID,
		Credentials:   creds,
		IsPrimary:     req.IsPrimary,
		Active:        true,
	})
	if err != nil {
		h.logger.Error("save connection failed", "tenant_id", tenantID, "provider", name, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("calendar linked", "tenant_id", tenantID, "connection_id", conn.ID, "provider", name)
	writeJSON(w, http.StatusCreated, wire.FromConnection(conn))
}

func (h *Handler) DeactivateConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantID(r)
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}
	var req wire.DeactivateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ConnectionID) == "" {
		http.Error(w, "connection_id is required", http.StatusBadRequest)
		return
	}
	if err := h.registry.Deactivate(r.Context(), tenantID, req.ConnectionID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
