package wire

import (
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/orchestrator"
)

func FromSlots(in []model.UnifiedAvailabilitySlot) []Slot {
	out := make([]Slot, 0, len(in))
	for _, s := range in {
		slot := Slot{Start: s.Start, End: s.End, Available: s.Available}
		for _, src := range s.Sources {
			slot.Sources = append(slot.Sources, SlotSource{
				ConnectionID:  src.ConnectionID,
				Provider:      string(src.Provider),
				CalendarID:    src.CalendarID,
				StaffMemberID: src.StaffMemberID,
				Available:     src.Available,
			})
		}
		out = append(out, slot)
	}
	return out
}

func FromEvent(e model.UnifiedCalendarEvent) Event {
	out := Event{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		Start:            e.Start,
		End:              e.End,
		TimeZone:         e.TimeZone,
		Location:         e.Location,
		Status:           string(e.Status),
		ShowAs:           string(e.ShowAs),
		OnlineMeetingURL: e.OnlineMeetingURL,
		HTMLLink:         e.HTMLLink,
		Provider:         string(e.Provider),
		CalendarID:       e.CalendarID,
		ConnectionID:     e.ConnectionID,
		StaffMemberID:    e.StaffMemberID,
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, Attendee{Email: a.Email, DisplayName: a.DisplayName, ResponseStatus: a.ResponseStatus})
	}
	return out
}

func FromEvents(in []model.UnifiedCalendarEvent) []Event {
	out := make([]Event, 0, len(in))
	for _, e := range in {
		out = append(out, FromEvent(e))
	}
	return out
}

func FromBookingResult(res model.BookingResult, err error) BookingResponse {
	out := BookingResponse{Success: res.Success, Alternatives: FromSlots(res.Alternatives), Error: res.Error}
	if res.Event != nil {
		ev := FromEvent(*res.Event)
		out.Event = &ev
	}
	if err != nil {
		out.Kind = Kind(err)
		if out.Error == "" {
			out.Error = err.Error()
		}
	}
	return out
}

func FromHealth(rep model.HealthReport) HealthResponse {
	out := HealthResponse{OverallStatus: string(rep.OverallStatus), Connections: make([]ConnectionHealth, 0, len(rep.Connections))}
	for _, c := range rep.Connections {
		out.Connections = append(out.Connections, ConnectionHealth{
			ConnectionID: c.ConnectionID,
			Provider:     string(c.Provider),
			CalendarID:   c.CalendarID,
			Status:       string(c.Status),
			Details:      c.Details,
		})
	}
	return out
}

// FromConnection never exposes credentials.
func FromConnection(c model.CalendarConnection) Connection {
	return Connection{
		ID:            c.ID,
		Provider:      string(c.Provider),
		CalendarID:    c.CalendarID,
		DisplayName:   c.DisplayName,
		StaffMemberID: c.StaffMemberID,
		IsPrimary:     c.IsPrimary,
		Active:        c.Active,
	}
}

func (r AvailabilityRequest) Query() orchestrator.AvailabilityQuery {
	return orchestrator.AvailabilityQuery{
		TimeMin:      r.TimeMin,
		TimeMax:      r.TimeMax,
		Timezone:     r.Timezone,
		SlotDuration: time.Duration(r.SlotMinutes) * time.Minute,
	}
}

func (r ListEventsRequest) Query() orchestrator.ListQuery {
	return orchestrator.ListQuery{TimeMin: r.TimeMin, TimeMax: r.TimeMax, MaxResults: r.MaxResults}
}

// Booking converts the request. An unknown preferred provider is an error; an empty one means any.
func (r BookingRequest) Booking() (model.BookingRequest, model.Provider, error) {
	var preferred model.Provider
	if r.PreferredProvider != "" {
		p, ok := model.ParseProvider(r.PreferredProvider)
		if !ok {
			return model.BookingRequest{}, "", &orchestrator.ValidationError{Field: "preferred_provider", Reason: "unknown provider " + r.PreferredProvider}
		}
		preferred = p
	}
	return model.BookingRequest{
		Service: model.Service{
			Name:           r.Service.Name,
			Duration:       time.Duration(r.Service.DurationMinutes) * time.Minute,
			PreferredStaff: r.Service.PreferredStaff,
		},
		Customer:            model.Customer{Name: r.Customer.Name, Email: r.Customer.Email, Phone: r.Customer.Phone},
		PreferredStart:      r.PreferredDatetime,
		Timezone:            r.Timezone,
		Notes:               r.Notes,
		SendInvites:         r.SendInvites,
		CreateOnlineMeeting: r.CreateOnlineMeeting,
	}, preferred, nil
}
