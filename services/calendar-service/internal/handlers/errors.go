package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/calendarhub/libs/httpx"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/wire"
)

func statusFor(kind string) int {
	switch kind {
	case wire.KindValidation:
		return http.StatusBadRequest
	case wire.KindConfiguration:
		return http.StatusUnprocessableEntity
	case wire.KindConflict, wire.KindBusy:
		return http.StatusConflict
	case wire.KindNotFound:
		return http.StatusNotFound
	case wire.KindAuth, wire.KindProvider:
		return http.StatusBadGateway
	case wire.KindUnavailable:
		return http.StatusServiceUnavailable
	case wire.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := wire.Kind(err)
	if kind == wire.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, statusFor(kind), wire.ErrorResponse{Error: err.Error(), Kind: kind, Alternatives: wire.Alternatives(err)})
}

func (h *Handler) logFailure(r *http.Request, op string, err error) {
	kind := wire.Kind(err)
	attrs := []any{"op", op, "kind", kind, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err}
	switch kind {
	case wire.KindValidation, wire.KindConflict, wire.KindBusy:
		h.logger.Info("request rejected", attrs...)
	default:
		h.logger.Error("request failed", attrs...)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
