package model

import "time"

type EventStatus string

const (
	EventTentative EventStatus = "tentative"
	EventConfirmed EventStatus = "confirmed"
	EventCancelled EventStatus = "cancelled"
)

// ShowAs is the free/busy classification of an event. Only ShowAsFree leaves a slot open.
type ShowAs string

const (
	ShowAsFree      ShowAs = "free"
	ShowAsBusy      ShowAs = "busy"
	ShowAsTentative ShowAs = "tentative"
	ShowAsOOF       ShowAs = "oof"
	ShowAsUnknown   ShowAs = "unknown"
)

type Attendee struct {
	Email          string
	DisplayName    string
	ResponseStatus string
}

// CalendarEvent is the provider-neutral event shape. ID is assigned by the provider.
type CalendarEvent struct {
	ID               string
	Title            string
	Description      string
	Start            time.Time
	End              time.Time
	TimeZone         string
	Attendees        []Attendee
	Location         string
	Status           EventStatus
	ShowAs           ShowAs
	OnlineMeetingURL string
	HTMLLink         string
}

// Blocks reports whether the event makes overlapping time unavailable.
func (e CalendarEvent) Blocks() bool {
	if e.Status == EventCancelled {
		return false
	}
	return e.ShowAs != ShowAsFree
}

// UnifiedCalendarEvent is a CalendarEvent attributed to the connection it came from.
type UnifiedCalendarEvent struct {
	CalendarEvent
	Provider      Provider
	CalendarID    string
	ConnectionID  string
	StaffMemberID string
}

// Unify attributes e to conn.
func Unify(e CalendarEvent, conn CalendarConnection) UnifiedCalendarEvent {
	return UnifiedCalendarEvent{
		CalendarEvent: e,
		Provider:      conn.Provider,
		CalendarID:    conn.CalendarID,
		ConnectionID:  conn.ID,
		StaffMemberID: conn.StaffMemberID,
	}
}
