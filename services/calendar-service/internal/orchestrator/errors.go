package orchestrator

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

// ErrBookingInProgress means another booking holds the window lease. Retrying later is safe.
var ErrBookingInProgress = errors.New("another booking for this window is in progress")

// ErrAvailabilityUnknown means no connection could be read to verify a booking window.
var ErrAvailabilityUnknown = errors.New("availability could not be verified on any connection")

// ConfigurationError means the tenant's connections cannot serve the request.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Reason }

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError means the requested window is taken. Alternatives may be empty.
type ConflictError struct {
	Alternatives []model.UnifiedAvailabilitySlot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested slot is not available (%d alternatives)", len(e.Alternatives))
}

// OpError wraps every error returned by the Orchestrator with the operation and identifiers.
type OpError struct {
	Op           string
	TenantID     string
	ConnectionID string
	Err          error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.TenantID != "" {
		msg += " tenant=" + e.TenantID
	}
	if e.ConnectionID != "" {
		msg += " connection=" + e.ConnectionID
	}
	return msg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, tenant model.TenantCalendars, connectionID string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, TenantID: tenant.TenantID, ConnectionID: connectionID, Err: err}
}
