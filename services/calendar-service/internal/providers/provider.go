package providers

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

// TokenRefreshFunc receives rotated credentials after a successful refresh so they can
// be persisted. Its error is logged and never fails the call that triggered the refresh.
type TokenRefreshFunc func(ctx context.Context, creds model.Credentials) error

// ListAll as ListQuery.MaxResults pages until the provider has no more results.
const ListAll = -1

type ListQuery struct {
	TimeMin time.Time
	TimeMax time.Time
	// MaxResults caps the result; zero means the provider default, ListAll means no cap.
	MaxResults int
	// OrderBy is "startTime" (default) or "updated".
	OrderBy string
}

type AvailabilityQuery struct {
	CalendarIDs  []string
	TimeMin      time.Time
	TimeMax      time.Time
	Timezone     string
	SlotDuration time.Duration
}

// Client talks to one connection's calendar account. A Client owns mutable credential
// state and must not be shared between connections; Provider.Open returns a fresh one.
type Client interface {
	SetCredentials(creds model.Credentials)
	State() AuthState

	CreateEvent(ctx context.Context, calendarID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	GetEvent(ctx context.Context, calendarID, eventID string) (model.CalendarEvent, error)
	// ListEvents returns events overlapping the query window ordered by start. No events is not an error.
	ListEvents(ctx context.Context, calendarID string, q ListQuery) ([]model.CalendarEvent, error)

	// CheckAvailability tiles the window for every calendar independently. Calendars that
	// cannot be read are left out and reported through a *PartialAvailabilityError returned
	// together with the slots of the calendars that succeeded.
	CheckAvailability(ctx context.Context, q AvailabilityQuery) ([]model.AvailabilitySlot, error)
	// CreateBooking re-verifies the requested window on calendarID and writes the event only
	// if it is free; otherwise it returns Success=false with alternatives from the look-ahead window.
	CreateBooking(ctx context.Context, calendarID string, req model.BookingRequest) (model.ProviderBookingResult, error)

	HealthCheck(ctx context.Context) (model.HealthStatus, string)
}

// WriteOptions control provider side effects of event writes.
type WriteOptions struct {
	SendInvites         bool
	CreateOnlineMeeting bool
}

// Provider builds Clients for one external calendar service and runs its OAuth flows.
type Provider interface {
	Name() model.Provider
	Open(conn model.CalendarConnection, onRefresh TokenRefreshFunc) Client
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (model.Credentials, error)
}
