package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"golang.org/x/oauth2/endpoints"
)

const (
	GraphBaseURL      = "https://graph.microsoft.com/v1.0"
	graphMaxPageSize  = 100
	graphDateTimeForm = "2006-01-02T15:04:05.9999999"
)

var outlookScopes = []string{"offline_access", "Calendars.ReadWrite", "User.Read"}

// Outlook is the Microsoft Graph calendar provider.
type Outlook struct {
	base
}

// NewOutlook uses the AzureAD endpoints of tenant ("common" when empty) unless cfg.Endpoint is set.
func NewOutlook(cfg Config, tenant string) *Outlook {
	if tenant == "" {
		tenant = "common"
	}
	return &Outlook{base: newBase(model.ProviderOutlook, cfg, GraphBaseURL, endpoints.AzureAD(tenant), outlookScopes)}
}

func (o *Outlook) Open(conn model.CalendarConnection, onRefresh TokenRefreshFunc) Client {
	header := http.Header{}
	header.Set("Prefer", `outlook.timezone="UTC"`)
	return &outlookClient{b: &o.base, s: o.newSession(conn, onRefresh, header)}
}

type outlookClient struct {
	b *base
	s *session
}

func (c *outlookClient) SetCredentials(creds model.Credentials) { c.s.SetCredentials(creds) }
func (c *outlookClient) State() AuthState                       { return c.s.State() }

func (c *outlookClient) calendarURL(calendarID string) string {
	if calendarID == "" || calendarID == "primary" {
		return c.b.baseURL + "/me/calendar"
	}
	return c.b.baseURL + "/me/calendars/" + url.PathEscape(calendarID)
}

func (c *outlookClient) eventURL(eventID string) string {
	return c.b.baseURL + "/me/events/" + url.PathEscape(eventID)
}

func (c *outlookClient) CreateEvent(ctx context.Context, calendarID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error) {
	var out graphEvent
	if err := c.s.do(ctx, "create event", http.MethodPost, c.calendarURL(calendarID)+"/events", toGraphEvent(event, opts), &out); err != nil {
		return model.CalendarEvent{}, err
	}
	return out.toModel(), nil
}

func (c *outlookClient) UpdateEvent(ctx context.Context, _ string, eventID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error) {
	var out graphEvent
	if err := c.s.do(ctx, "update event", http.MethodPatch, c.eventURL(eventID), toGraphEvent(event, opts), &out); err != nil {
		return model.CalendarEvent{}, err
	}
	return out.toModel(), nil
}

func (c *outlookClient) DeleteEvent(ctx context.Context, _ string, eventID string) error {
	return c.s.do(ctx, "delete event", http.MethodDelete, c.eventURL(eventID), nil, nil)
}

func (c *outlookClient) GetEvent(ctx context.Context, _ string, eventID string) (model.CalendarEvent, error) {
	var out graphEvent
	if err := c.s.do(ctx, "get event", http.MethodGet, c.eventURL(eventID), nil, &out); err != nil {
		return model.CalendarEvent{}, err
	}
	return out.toModel(), nil
}

// ListEvents uses calendarView when the window is bounded so recurring events are expanded.
func (c *outlookClient) ListEvents(ctx context.Context, calendarID string, q ListQuery) ([]model.CalendarEvent, error) {
	limit := listLimit(q.MaxResults)
	params := url.Values{}
	if q.OrderBy == "updated" {
		params.Set("$orderby", "lastModifiedDateTime desc")
	} else {
		params.Set("$orderby", "start/dateTime")
	}
	params.Set("$top", strconv.Itoa(min(limit, graphMaxPageSize)))

	var next string
	if !q.TimeMin.IsZero() && !q.TimeMax.IsZero() {
		params.Set("startDateTime", q.TimeMin.UTC().Format(time.RFC3339))
		params.Set("endDateTime", q.TimeMax.UTC().Format(time.RFC3339))
		next = c.calendarURL(calendarID) + "/calendarView?" + params.Encode()
	} else {
		var filters []string
		if !q.TimeMin.IsZero() {
			filters = append(filters, "end/dateTime ge '"+q.TimeMin.UTC().Format(time.RFC3339)+"'")
		}
		if !q.TimeMax.IsZero() {
			filters = append(filters, "start/dateTime lt '"+q.TimeMax.UTC().Format(time.RFC3339)+"'")
		}
		if len(filters) > 0 {
			params.Set("$filter", strings.Join(filters, " and "))
		}
		next = c.calendarURL(calendarID) + "/events?" + params.Encode()
	}

	var out []model.CalendarEvent
	for next != "" && len(out) < limit {
		var page graphEventList
		if err := c.s.do(ctx, "list events", http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Value {
			out = append(out, it.toModel())
		}
		next = page.NextLink
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *outlookClient) CheckAvailability(ctx context.Context, q AvailabilityQuery) ([]model.AvailabilitySlot, error) {
	return checkAvailability(ctx, c, c.s.logger, c.b.name, q)
}

func (c *outlookClient) CreateBooking(ctx context.Context, calendarID string, req model.BookingRequest) (model.ProviderBookingResult, error) {
	return createBooking(ctx, c.b, c, calendarID, req)
}

func (c *outlookClient) HealthCheck(ctx context.Context) (model.HealthStatus, string) {
	var out graphEventList
	if err := c.s.do(ctx, "health check", http.MethodGet, c.b.baseURL+"/me/calendars?$top=1", nil, &out); err != nil {
		return model.HealthError, err.Error()
	}
	return model.HealthHealthy, "calendars reachable"
}

type graphEventList struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink,omitempty"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphResponseStatus struct {
	Response string `json:"response,omitempty"`
}

type graphAttendee struct {
	EmailAddress graphEmailAddress    `json:"emailAddress"`
	Type         string               `json:"type,omitempty"`
	Status       *graphResponseStatus `json:"status,omitempty"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphOnlineMeeting struct {
	JoinURL string `json:"joinUrl,omitempty"`
}

type graphEvent struct {
	ID                    string               `json:"id,omitempty"`
	Subject               string               `json:"subject,omitempty"`
	Body                  *graphBody           `json:"body,omitempty"`
	BodyPreview           string               `json:"bodyPreview,omitempty"`
	Start                 graphDateTime        `json:"start"`
	End                   graphDateTime        `json:"end"`
	OriginalStartTimeZone string               `json:"originalStartTimeZone,omitempty"`
	Location              *graphLocation       `json:"location,omitempty"`
	Attendees             []graphAttendee      `json:"attendees,omitempty"`
	ShowAs                string               `json:"showAs,omitempty"`
	IsCancelled           bool                 `json:"isCancelled,omitempty"`
	IsOnlineMeeting       bool                 `json:"isOnlineMeeting,omitempty"`
	OnlineMeetingProvider string               `json:"onlineMeetingProvider,omitempty"`
	OnlineMeeting         *graphOnlineMeeting  `json:"onlineMeeting,omitempty"`
	WebLink               string               `json:"webLink,omitempty"`
	ResponseStatus        *graphResponseStatus `json:"responseStatus,omitempty"`
}

func toGraphDateTime(t time.Time, zone string) graphDateTime {
	loc, err := LoadLocation(zone)
	if err != nil || zone == "" {
		return graphDateTime{DateTime: t.UTC().Format(graphDateTimeForm), TimeZone: "UTC"}
	}
	return graphDateTime{DateTime: t.In(loc).Format(graphDateTimeForm), TimeZone: zone}
}

// Attendees are omitted unless invites are requested; Graph mails every listed attendee.
func toGraphEvent(e model.CalendarEvent, opts WriteOptions) graphEvent {
	out := graphEvent{
		Subject: e.Title,
		Body:    &graphBody{ContentType: "text", Content: e.Description},
		Start:   toGraphDateTime(e.Start, e.TimeZone),
		End:     toGraphDateTime(e.End, e.TimeZone),
	}
	if e.Location != "" {
		out.Location = &graphLocation{DisplayName: e.Location}
	}
	switch e.ShowAs {
	case model.ShowAsFree, model.ShowAsTentative, model.ShowAsOOF:
		out.ShowAs = string(e.ShowAs)
	default:
		out.ShowAs = string(model.ShowAsBusy)
	}
	if opts.SendInvites {
		for _, a := range e.Attendees {
			out.Attendees = append(out.Attendees, graphAttendee{
				EmailAddress: graphEmailAddress{Address: a.Email, Name: a.DisplayName},
				Type:         "required",
			})
		}
	}
	if opts.CreateOnlineMeeting {
		out.IsOnlineMeeting = true
		out.OnlineMeetingProvider = "teamsForBusiness"
	}
	return out
}

func (e graphEvent) toModel() model.CalendarEvent {
	out := model.CalendarEvent{
		ID:       e.ID,
		Title:    e.Subject,
		Start:    e.Start.parse(),
		End:      e.End.parse(),
		TimeZone: e.OriginalStartTimeZone,
		HTMLLink: e.WebLink,
	}
	if e.Body != nil {
		out.Description = e.Body.Content
	} else {
		out.Description = e.BodyPreview
	}
	if e.Location != nil {
		out.Location = e.Location.DisplayName
	}
	if e.OnlineMeeting != nil {
		out.OnlineMeetingURL = e.OnlineMeeting.JoinURL
	}

	switch strings.ToLower(e.ShowAs) {
	case "free":
		out.ShowAs = model.ShowAsFree
	case "tentative":
		out.ShowAs = model.ShowAsTentative
	case "oof":
		out.ShowAs = model.ShowAsOOF
	case "busy", "workingelsewhere":
		out.ShowAs = model.ShowAsBusy
	default:
		out.ShowAs = model.ShowAsUnknown
	}
	switch {
	case e.IsCancelled:
		out.Status = model.EventCancelled
	case out.ShowAs == model.ShowAsTentative:
		out.Status = model.EventTentative
	default:
		out.Status = model.EventConfirmed
	}

	for _, a := range e.Attendees {
		att := model.Attendee{Email: a.EmailAddress.Address, DisplayName: a.EmailAddress.Name}
		if a.Status != nil {
			att.ResponseStatus = a.Status.Response
		}
		out.Attendees = append(out.Attendees, att)
	}
	return out
}

func (d graphDateTime) parse() time.Time {
	loc := time.UTC
	if d.TimeZone != "" && !strings.EqualFold(d.TimeZone, "UTC") {
		if l, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphDateTimeForm, d.DateTime, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
