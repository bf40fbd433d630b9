package outbox

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Topic names double as event types; each event type has its own Kafka topic.
const (
	TopicBookingCreated   = "calendar.booking.created.v1"
	TopicBookingCancelled = "calendar.booking.cancelled.v1"
	TopicConnectionLinked = "calendar.connection.linked.v1"
)

const (
	AggregateBooking    = "calendar_booking"
	AggregateConnection = "calendar_connection"
)

// Event is the envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(eventType, aggregateType, aggregateID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{AggregateType: aggregateType, AggregateID: aggregateID, EventType: eventType, Payload: body}, nil
}

type BookingCreated struct {
	TenantID         string    `json:"tenant_id"`
	ConnectionID     string    `json:"connection_id"`
	Provider         string    `json:"provider"`
	CalendarID       string    `json:"calendar_id"`
	EventID          string    `json:"event_id"`
	StaffMemberID    string    `json:"staff_member_id,omitempty"`
	Service          string    `json:"service"`
	CustomerName     string    `json:"customer_name"`
	CustomerEmail    string    `json:"customer_email,omitempty"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	OnlineMeetingURL string    `json:"online_meeting_url,omitempty"`
}

type BookingCancelled struct {
	TenantID     string    `json:"tenant_id"`
	ConnectionID string    `json:"connection_id"`
	Provider     string    `json:"provider"`
	CalendarID   string    `json:"calendar_id"`
	EventID      string    `json:"event_id"`
	CancelledAt  time.Time `json:"cancelled_at"`
}

type ConnectionLinked struct {
	TenantID      string `json:"tenant_id"`
	ConnectionID  string `json:"connection_id"`
	Provider      string `json:"provider"`
	CalendarID    string `json:"calendar_id"`
	StaffMemberID string `json:"staff_member_id,omitempty"`
}
