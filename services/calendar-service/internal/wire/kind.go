package wire

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/orchestrator"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/registry"
)

// Error kinds reported to API callers.
const (
	KindValidation    = "validation"
	KindConfiguration = "configuration"
	KindConflict      = "conflict"
	KindBusy          = "busy"
	KindUnavailable   = "unavailable"
	KindAuth          = "auth"
	KindProvider      = "provider"
	KindNotFound      = "not_found"
	KindTimeout       = "timeout"
	KindInternal      = "internal"
)

// Kind classifies err. The most specific match wins: a conflict is reported as a
// conflict even though it is wrapped in an OpError.
func Kind(err error) string {
	var (
		valErr      *orchestrator.ValidationError
		cfgErr      *orchestrator.ConfigurationError
		conflictErr *orchestrator.ConflictError
		authErr     *providers.AuthError
		apiErr      *providers.ProviderAPIError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &conflictErr):
		return KindConflict
	case errors.Is(err, orchestrator.ErrBookingInProgress):
		return KindBusy
	case errors.Is(err, orchestrator.ErrAvailabilityUnknown):
		return KindUnavailable
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &apiErr):
		if apiErr.NotFound() {
			return KindNotFound
		}
		return KindProvider
	case errors.Is(err, registry.ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Alternatives returns the conflict alternatives carried by err, if any.
func Alternatives(err error) []Slot {
	var conflictErr *orchestrator.ConflictError
	if errors.As(err, &conflictErr) {
		return FromSlots(conflictErr.Alternatives)
	}
	return nil
}
