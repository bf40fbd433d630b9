package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"golang.org/x/oauth2/endpoints"
)

const (
	GoogleBaseURL        = "https://www.googleapis.com/calendar/v3"
	googleMaxPageSize    = 2500
	defaultListMaxResult = 250
)

var googleScopes = []string{"https://www.googleapis.com/auth/calendar"}

// Google is the Google Calendar v3 provider.
type Google struct {
	base
}

func NewGoogle(cfg Config) *Google {
	return &Google{base: newBase(model.ProviderGoogle, cfg, GoogleBaseURL, endpoints.Google, googleScopes)}
}

func (g *Google) Open(conn model.CalendarConnection, onRefresh TokenRefreshFunc) Client {
	return &googleClient{b: &g.base, s: g.newSession(conn, onRefresh, nil)}
}

type googleClient struct {
	b *base
	s *session
}

func (c *googleClient) SetCredentials(creds model.Credentials) { c.s.SetCredentials(creds) }
func (c *googleClient) State() AuthState                       { return c.s.State() }

func (c *googleClient) eventsURL(calendarID string) string {
	if calendarID == "" {
		calendarID = "primary"
	}
	return c.b.baseURL + "/calendars/" + url.PathEscape(calendarID) + "/events"
}

func (c *googleClient) eventURL(calendarID, eventID string) string {
	return c.eventsURL(calendarID) + "/" + url.PathEscape(eventID)
}

func writeQuery(opts WriteOptions) string {
	q := url.Values{}
	if opts.SendInvites {
		q.Set("sendUpdates", "all")
	} else {
		q.Set("sendUpdates", "none")
	}
	if opts.CreateOnlineMeeting {
		q.Set("conferenceDataVersion", "1")
	}
	return "?" + q.Encode()
}

func (c *googleClient) CreateEvent(ctx context.Context, calendarID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error) {
	var out googleEvent
	if err := c.s.do(ctx, "create event", http.MethodPost, c.eventsURL(calendarID)+writeQuery(opts), toGoogleEvent(event, opts), &out); err != nil {
		return model.CalendarEvent{}, err
	}
	return out.toModel(), nil
}

func (c *googleClient) UpdateEvent(ctx context.Context, calendarID, eventID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error) {
	var out googleEvent
	if err := c.s.do(ctx, "update event", http.MethodPut, c.eventURL(calendarID, eventID)+writeQuery(opts), toGoogleEvent(event, opts), &out); err != nil {
		return model.CalendarEvent{}, err
	}
	return out.toModel(), nil
}

// DeleteEvent treats an already deleted event (410 Gone) as success.
func (c *googleClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.s.do(ctx, "delete event", http.MethodDelete, c.eventURL(calendarID, eventID), nil, nil)
	var apiErr *ProviderAPIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusGone {
		return nil
	}
	return err
}

func (c *googleClient) GetEvent(ctx context.Context, calendarID, eventID string) (model.CalendarEvent, error) {
	var out googleEvent
	if err := c.s.do(ctx, "get event", http.MethodGet, c.eventURL(calendarID, eventID), nil, &out); err != nil {
		return model.CalendarEvent{}, err
	}
	return out.toModel(), nil
}

func (c *googleClient) ListEvents(ctx context.Context, calendarID string, q ListQuery) ([]model.CalendarEvent, error) {
	limit := listLimit(q.MaxResults)
	params := url.Values{}
	params.Set("singleEvents", "true")
	if q.OrderBy == "updated" {
		params.Set("orderBy", "updated")
	} else {
		params.Set("orderBy", "startTime")
	}
	if !q.TimeMin.IsZero() {
		params.Set("timeMin", q.TimeMin.UTC().Format(time.RFC3339))
	}
	if !q.TimeMax.IsZero() {
		params.Set("timeMax", q.TimeMax.UTC().Format(time.RFC3339))
	}

	var out []model.CalendarEvent
	pageToken := ""
	for len(out) < limit {
		params.Set("maxResults", strconv.Itoa(min(limit-len(out), googleMaxPageSize)))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		var page googleEventList
		if err := c.s.do(ctx, "list events", http.MethodGet, c.eventsURL(calendarID)+"?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			out = append(out, it.toModel())
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *googleClient) CheckAvailability(ctx context.Context, q AvailabilityQuery) ([]model.AvailabilitySlot, error) {
	return checkAvailability(ctx, c, c.s.logger, c.b.name, q)
}

func (c *googleClient) CreateBooking(ctx context.Context, calendarID string, req model.BookingRequest) (model.ProviderBookingResult, error) {
	return createBooking(ctx, c.b, c, calendarID, req)
}

func (c *googleClient) HealthCheck(ctx context.Context) (model.HealthStatus, string) {
	var out struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := c.s.do(ctx, "health check", http.MethodGet, c.b.baseURL+"/users/me/calendarList?maxResults=1", nil, &out); err != nil {
		return model.HealthError, err.Error()
	}
	return model.HealthHealthy, "calendar list reachable"
}

type googleEventList struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

type googleDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

type googleConferenceData struct {
	CreateRequest *googleCreateConference `json:"createRequest,omitempty"`
	EntryPoints   []googleEntryPoint      `json:"entryPoints,omitempty"`
}

type googleCreateConference struct {
	RequestID             string `json:"requestId"`
	ConferenceSolutionKey struct {
		Type string `json:"type"`
	} `json:"conferenceSolutionKey"`
}

type googleEntryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

type googleEvent struct {
	ID             string                `json:"id,omitempty"`
	Status         string                `json:"status,omitempty"`
	HTMLLink       string                `json:"htmlLink,omitempty"`
	Summary        string                `json:"summary,omitempty"`
	Description    string                `json:"description,omitempty"`
	Location       string                `json:"location,omitempty"`
	Start          googleDateTime        `json:"start"`
	End            googleDateTime        `json:"end"`
	Transparency   string                `json:"transparency,omitempty"`
	Attendees      []googleAttendee      `json:"attendees,omitempty"`
	HangoutLink    string                `json:"hangoutLink,omitempty"`
	ConferenceData *googleConferenceData `json:"conferenceData,omitempty"`
}

func toGoogleEvent(e model.CalendarEvent, opts WriteOptions) googleEvent {
	out := googleEvent{
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       googleDateTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: e.TimeZone},
		End:         googleDateTime{DateTime: e.End.Format(time.RFC3339), TimeZone: e.TimeZone},
	}
	switch e.Status {
	case model.EventTentative, model.EventCancelled:
		out.Status = string(e.Status)
	default:
		out.Status = string(model.EventConfirmed)
	}
	if e.ShowAs == model.ShowAsFree {
		out.Transparency = "transparent"
	} else {
		out.Transparency = "opaque"
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, googleAttendee{Email: a.Email, DisplayName: a.DisplayName, ResponseStatus: a.ResponseStatus})
	}
	if opts.CreateOnlineMeeting {
		req := &googleCreateConference{RequestID: uuid.NewString()}
		req.ConferenceSolutionKey.Type = "hangoutsMeet"
		out.ConferenceData = &googleConferenceData{CreateRequest: req}
	}
	return out
}

func (e googleEvent) toModel() model.CalendarEvent {
	out := model.CalendarEvent{
		ID:          e.ID,
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		TimeZone:    e.Start.TimeZone,
		HTMLLink:    e.HTMLLink,
		Start:       e.Start.parse(),
		End:         e.End.parse(),
	}
	switch e.Status {
	case "tentative":
		out.Status = model.EventTentative
	case "cancelled":
		out.Status = model.EventCancelled
	default:
		out.Status = model.EventConfirmed
	}
	switch {
	case e.Transparency == "transparent":
		out.ShowAs = model.ShowAsFree
	case out.Status == model.EventTentative:
		out.ShowAs = model.ShowAsTentative
	default:
		out.ShowAs = model.ShowAsBusy
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, model.Attendee{Email: a.Email, DisplayName: a.DisplayName, ResponseStatus: a.ResponseStatus})
	}
	out.OnlineMeetingURL = e.HangoutLink
	if e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.OnlineMeetingURL = ep.URI
				break
			}
		}
	}
	return out
}

// parse handles timed and all-day values. All-day dates start at midnight in the
// event zone, or UTC when the zone is absent or unknown.
func (d googleDateTime) parse() time.Time {
	if d.DateTime != "" {
		t, err := time.Parse(time.RFC3339, d.DateTime)
		if err == nil {
			return t
		}
	}
	if d.Date != "" {
		loc := time.UTC
		if d.TimeZone != "" {
			if l, err := time.LoadLocation(d.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", d.Date, loc)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
