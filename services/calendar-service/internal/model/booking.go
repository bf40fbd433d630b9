package model

import (
	"strings"
	"time"
)

type Service struct {
	Name           string
	Duration       time.Duration
	PreferredStaff string
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

// BookingRequest is consumed once to produce an event or a conflict with alternatives.
type BookingRequest struct {
	Service             Service
	Customer            Customer
	PreferredStart      time.Time
	Timezone            string
	Notes               string
	SendInvites         bool
	CreateOnlineMeeting bool
}

// Window returns the exact [start, end) the request occupies.
func (r BookingRequest) Window() (time.Time, time.Time) {
	return r.PreferredStart, r.PreferredStart.Add(r.Service.Duration)
}

// Event renders the calendar event a successful booking writes.
func (r BookingRequest) Event() CalendarEvent {
	start, end := r.Window()
	var desc strings.Builder
	desc.WriteString("Service: " + r.Service.Name + "\n")
	desc.WriteString("Customer: " + r.Customer.Name + "\n")
	if r.Customer.Email != "" {
		desc.WriteString("Email: " + r.Customer.Email + "\n")
	}
	if r.Customer.Phone != "" {
		desc.WriteString("Phone: " + r.Customer.Phone + "\n")
	}
	if r.Notes != "" {
		desc.WriteString("\n" + r.Notes + "\n")
	}

	ev := CalendarEvent{
		Title:       r.Service.Name + " - " + r.Customer.Name,
		Description: strings.TrimRight(desc.String(), "\n"),
		Start:       start,
		End:         end,
		TimeZone:    r.Timezone,
		Status:      EventConfirmed,
		ShowAs:      ShowAsBusy,
	}
	if r.Customer.Email != "" {
		ev.Attendees = []Attendee{{Email: r.Customer.Email, DisplayName: r.Customer.Name, ResponseStatus: "needsAction"}}
	}
	return ev
}

// ProviderBookingResult is the outcome of a single-calendar booking attempt.
type ProviderBookingResult struct {
	Success      bool
	Event        *CalendarEvent
	Alternatives []AvailabilitySlot
}

// BookingResult is the outcome of a tenant-level booking.
type BookingResult struct {
	Success      bool
	Event        *UnifiedCalendarEvent
	Alternatives []UnifiedAvailabilitySlot
	Error        string
}

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthError    HealthStatus = "error"
)

type ConnectionHealth struct {
	ConnectionID string
	Provider     Provider
	CalendarID   string
	Status       HealthStatus
	Details      string
}

type HealthReport struct {
	OverallStatus HealthStatus
	Connections   []ConnectionHealth
}
