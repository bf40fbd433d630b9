// Package wire holds the JSON shapes of the engine API. HTTP handlers and the RPC
// service encode the same structs.
package wire

import (
	"time"
)

type SlotSource struct {
	ConnectionID  string `json:"connection_id"`
	Provider      string `json:"provider"`
	CalendarID    string `json:"calendar_id"`
	StaffMemberID string `json:"staff_member_id,omitempty"`
	Available     bool   `json:"available"`
}

type Slot struct {
	Start     time.Time    `json:"start"`
	End       time.Time    `json:"end"`
	Available bool         `json:"available"`
	Sources   []SlotSource `json:"sources,omitempty"`
}

type AvailabilityRequest struct {
	TenantID    string    `json:"tenant_id,omitempty"`
	TimeMin     time.Time `json:"time_min"`
	TimeMax     time.Time `json:"time_max"`
	Timezone    string    `json:"timezone,omitempty"`
	SlotMinutes int       `json:"slot_minutes,omitempty"`
}

type AvailabilityResponse struct {
	Slots               []Slot   `json:"slots"`
	DegradedConnections []string `json:"degraded_connections,omitempty"`
}

type Service struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PreferredStaff  string `json:"preferred_staff,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type BookingRequest struct {
	TenantID            string    `json:"tenant_id,omitempty"`
	PreferredProvider   string    `json:"preferred_provider,omitempty"`
	Service             Service   `json:"service"`
	Customer            Customer  `json:"customer"`
	PreferredDatetime   time.Time `json:"preferred_datetime"`
	Timezone            string    `json:"timezone,omitempty"`
	Notes               string    `json:"notes,omitempty"`
	SendInvites         bool      `json:"send_invites,omitempty"`
	CreateOnlineMeeting bool      `json:"create_online_meeting,omitempty"`
}

type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

type Event struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	TimeZone         string     `json:"timezone,omitempty"`
	Location         string     `json:"location,omitempty"`
	Status           string     `json:"status"`
	ShowAs           string     `json:"show_as"`
	Attendees        []Attendee `json:"attendees,omitempty"`
	OnlineMeetingURL string     `json:"online_meeting_url,omitempty"`
	HTMLLink         string     `json:"html_link,omitempty"`
	Provider         string     `json:"provider"`
	CalendarID       string     `json:"calendar_id"`
	ConnectionID     string     `json:"connection_id"`
	StaffMemberID    string     `json:"staff_member_id,omitempty"`
}

type BookingResponse struct {
	Success      bool   `json:"success"`
	Event        *Event `json:"event,omitempty"`
	Alternatives []Slot `json:"alternatives,omitempty"`
	Error        string `json:"error,omitempty"`
	Kind         string `json:"kind,omitempty"`
}

type CancelRequest struct {
	TenantID     string `json:"tenant_id,omitempty"`
	ConnectionID string `json:"connection_id"`
	EventID      string `json:"event_id"`
}

type CancelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type ListEventsRequest struct {
	TenantID   string    `json:"tenant_id,omitempty"`
	TimeMin    time.Time `json:"time_min,omitempty"`
	TimeMax    time.Time `json:"time_max,omitempty"`
	MaxResults int       `json:"max_results,omitempty"`
}

type ListEventsResponse struct {
	Events              []Event  `json:"events"`
	DegradedConnections []string `json:"degraded_connections,omitempty"`
}

type HealthRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
}

type ConnectionHealth struct {
	ConnectionID string `json:"connection_id"`
	Provider     string `json:"provider"`
	CalendarID   string `json:"calendar_id"`
	Status       string `json:"status"`
	Details      string `json:"details,omitempty"`
}

type HealthResponse struct {
	OverallStatus string             `json:"overall_status"`
	Connections   []ConnectionHealth `json:"connections"`
}

type AuthURLResponse struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

type LinkConnectionRequest struct {
	Provider      string `json:"provider"`
	Code          string `json:"code"`
	CalendarID    string `json:"calendar_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	StaffMemberID string `json:"staff_member_id,omitempty"`
	IsPrimary     bool   `json:"is_primary,omitempty"`
}

type DeactivateConnectionRequest struct {
	ConnectionID string `json:"connection_id"`
}

type Connection struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	CalendarID    string `json:"calendar_id"`
	DisplayName   string `json:"display_name,omitempty"`
	StaffMemberID string `json:"staff_member_id,omitempty"`
	IsPrimary     bool   `json:"is_primary"`
	Active        bool   `json:"active"`
}

type ConnectionsResponse struct {
	Connections []Connection `json:"connections"`
}

type ErrorResponse struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	Alternatives []Slot `json:"alternatives,omitempty"`
}
