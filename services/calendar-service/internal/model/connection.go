package model

import "strings"

// Provider identifies an external calendar service.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
)

// ParseProvider accepts the canonical names plus common aliases.
func ParseProvider(raw string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "google", "google_calendar", "gcal":
		return ProviderGoogle, true
	case "outlook", "microsoft", "office365", "graph":
		return ProviderOutlook, true
	default:
		return "", false
	}
}

// Credentials is the OAuth pair held for one connection.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// CalendarConnection binds one tenant to one external calendar.
type CalendarConnection struct {
	ID            string
	TenantID      string
	Provider      Provider
	CalendarID    string
	DisplayName   string
	StaffMemberID string
	Credentials   Credentials
	IsPrimary     bool
	Active        bool
}

// TenantCalendars is the per-request view of a tenant's connections.
type TenantCalendars struct {
	TenantID    string
	Timezone    string
	Connections []CalendarConnection
}

// ActiveConnections returns active connections in input order.
func (t TenantCalendars) ActiveConnections() []CalendarConnection {
	out := make([]CalendarConnection, 0, len(t.Connections))
	for _, c := range t.Connections {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// Connection looks a connection up by id regardless of its active flag.
func (t TenantCalendars) Connection(id string) (CalendarConnection, bool) {
	for _, c := range t.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return CalendarConnection{}, false
}
