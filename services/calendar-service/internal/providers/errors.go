package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

// AuthError means the client has no usable credentials: none were set, the access token
// was rejected and no refresh token exists, or the refresh itself failed. It is terminal
// for the client that returned it.
type AuthError struct {
	Provider model.Provider
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s auth: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s auth: %s", e.Provider, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

const maxErrorBody = 512

// ProviderAPIError is a non-2xx answer from the provider API.
type ProviderAPIError struct {
	Provider model.Provider
	Op       string
	Status   int
	Body     string
}

func (e *ProviderAPIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.Status, strings.TrimSpace(body))
}

// NotFound reports whether the provider answered 404 or 410.
func (e *ProviderAPIError) NotFound() bool {
	return e.Status == 404 || e.Status == 410
}

// PartialAvailabilityError lists calendars whose availability could not be computed.
// It accompanies a usable (possibly empty) result and is not a failure of the query.
type PartialAvailabilityError struct {
	Provider model.Provider
	Failures map[string]error
}

func (e *PartialAvailabilityError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e.Failures[id].Error())
	}
	return fmt.Sprintf("%s availability incomplete (%s)", e.Provider, strings.Join(parts, "; "))
}

func (e *PartialAvailabilityError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}
