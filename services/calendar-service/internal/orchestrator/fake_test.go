package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/availability"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/outbox"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
)

var errProviderDown = errors.New("provider unreachable")

// fakeProvider keeps one in-memory calendar per connection id.
type fakeProvider struct {
	name model.Provider

	mu        sync.Mutex
	events    map[string][]model.CalendarEvent
	failing   map[string]bool
	hanging   map[string]bool
	refreshOn map[string]bool
	creates   int
	deletes   []string
	nextID    int

	inFlight    int
	maxInFlight int
	hold        time.Duration

	// writeHang blocks CreateEvent until its context ends; writeDeadline records that context's deadline.
	writeHang     bool
	writeDeadline time.Time
}

func newFakeProvider(name model.Provider) *fakeProvider {
	return &fakeProvider{
		name:      name,
		events:    map[string][]model.CalendarEvent{},
		failing:   map[string]bool{},
		hanging:   map[string]bool{},
		refreshOn: map[string]bool{},
	}
}

func (p *fakeProvider) Name() model.Provider { return p.name }

func (p *fakeProvider) Open(conn model.CalendarConnection, onRefresh providers.TokenRefreshFunc) providers.Client {
	return &fakeClient{p: p, conn: conn, onRefresh: onRefresh, state: providers.StateAuthenticated}
}

func (p *fakeProvider) AuthCodeURL(state string) string { return "https://auth.example/" + state }

func (p *fakeProvider) Exchange(_ context.Context, code string) (model.Credentials, error) {
	if code == "bad" {
		return model.Credentials{}, &providers.AuthError{Provider: p.name, Reason: "authorization code exchange failed"}
	}
	return model.Credentials{AccessToken: "at-" + code, RefreshToken: "rt-" + code}, nil
}

func (p *fakeProvider) busy(connID string, start, end time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.events[connID] = append(p.events[connID], model.CalendarEvent{
		ID:     "seed-" + strconv.Itoa(p.nextID),
		Title:  "busy",
		Start:  start,
		End:    end,
		Status: model.EventConfirmed,
		ShowAs: model.ShowAsBusy,
	})
}

func (p *fakeProvider) setFailing(connID string) {
	p.mu.Lock()
	p.failing[connID] = true
	p.mu.Unlock()
}

func (p *fakeProvider) createCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

type fakeClient struct {
	p         *fakeProvider
	conn      model.CalendarConnection
	onRefresh providers.TokenRefreshFunc
	state     providers.AuthState
}

func (c *fakeClient) SetCredentials(model.Credentials) {}
func (c *fakeClient) State() providers.AuthState       { return c.state }

// enter applies failure injection and tracks concurrency.
func (c *fakeClient) enter(ctx context.Context) error {
	c.p.mu.Lock()
	failing, hanging, refresh := c.p.failing[c.conn.ID], c.p.hanging[c.conn.ID], c.p.refreshOn[c.conn.ID]
	c.p.refreshOn[c.conn.ID] = false
	c.p.inFlight++
	if c.p.inFlight > c.p.maxInFlight {
		c.p.maxInFlight = c.p.inFlight
	}
	hold := c.p.hold
	c.p.mu.Unlock()

	defer func() {
		c.p.mu.Lock()
		c.p.inFlight--
		c.p.mu.Unlock()
	}()

	if refresh && c.onRefresh != nil {
		_ = c.onRefresh(ctx, model.Credentials{AccessToken: "rotated-" + c.conn.ID, RefreshToken: "rt"})
	}
	if hold > 0 {
		time.Sleep(hold)
	}
	if hanging {
		<-ctx.Done()
		return ctx.Err()
	}
	if failing {
		return errProviderDown
	}
	return nil
}

func (c *fakeClient) CreateEvent(ctx context.Context, _ string, ev model.CalendarEvent, _ providers.WriteOptions) (model.CalendarEvent, error) {
	c.p.mu.Lock()
	c.p.writeDeadline, _ = ctx.Deadline()
	hang := c.p.writeHang
	c.p.mu.Unlock()
	if hang {
		<-ctx.Done()
		return model.CalendarEvent{}, ctx.Err()
	}
	if err := c.enter(ctx); err != nil {
		return model.CalendarEvent{}, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.nextID++
	c.p.creates++
	ev.ID = "ev-" + strconv.Itoa(c.p.nextID)
	c.p.events[c.conn.ID] = append(c.p.events[c.conn.ID], ev)
	return ev, nil
}

func (c *fakeClient) UpdateEvent(ctx context.Context, calendarID, _ string, ev model.CalendarEvent, opts providers.WriteOptions) (model.CalendarEvent, error) {
	return c.CreateEvent(ctx, calendarID, ev, opts)
}

func (c *fakeClient) DeleteEvent(ctx context.Context, _ string, eventID string) error {
	if err := c.enter(ctx); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.deletes = append(c.p.deletes, eventID)
	return nil
}

func (c *fakeClient) GetEvent(ctx context.Context, _ string, eventID string) (model.CalendarEvent, error) {
	if err := c.enter(ctx); err != nil {
		return model.CalendarEvent{}, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	for _, ev := range c.p.events[c.conn.ID] {
		if ev.ID == eventID {
			return ev, nil
		}
	}
	return model.CalendarEvent{}, &providers.ProviderAPIError{Provider: c.p.name, Op: "get event", Status: 404}
}

func (c *fakeClient) ListEvents(ctx context.Context, _ string, q providers.ListQuery) ([]model.CalendarEvent, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	var out []model.CalendarEvent
	for _, ev := range c.p.events[c.conn.ID] {
		if !q.TimeMax.IsZero() && !ev.Start.Before(q.TimeMax) {
			continue
		}
		if !q.TimeMin.IsZero() && !ev.End.After(q.TimeMin) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (c *fakeClient) CheckAvailability(ctx context.Context, q providers.AvailabilityQuery) ([]model.AvailabilitySlot, error) {
	var out []model.AvailabilitySlot
	for _, cal := range q.CalendarIDs {
		events, err := c.ListEvents(ctx, cal, providers.ListQuery{TimeMin: q.TimeMin, TimeMax: q.TimeMax})
		if err != nil {
			return nil, &providers.PartialAvailabilityError{Provider: c.p.name, Failures: map[string]error{cal: err}}
		}
		slots := availability.CalendarSlots(q.TimeMin, q.TimeMax, q.SlotDuration, time.UTC, events)
		for i := range slots {
			slots[i].Provider = c.p.name
			slots[i].CalendarID = cal
		}
		out = append(out, slots...)
	}
	return out, nil
}

func (c *fakeClient) CreateBooking(ctx context.Context, calendarID string, req model.BookingRequest) (model.ProviderBookingResult, error) {
	start, end := req.Window()
	slots, err := c.CheckAvailability(ctx, providers.AvailabilityQuery{CalendarIDs: []string{calendarID}, TimeMin: start, TimeMax: end, SlotDuration: req.Service.Duration})
	if err != nil {
		return model.ProviderBookingResult{}, err
	}
	if len(slots) != 1 || !slots[0].Available {
		return model.ProviderBookingResult{}, nil
	}
	ev, err := c.CreateEvent(ctx, calendarID, req.Event(), providers.WriteOptions{})
	if err != nil {
		return model.ProviderBookingResult{}, err
	}
	return model.ProviderBookingResult{Success: true, Event: &ev}, nil
}

func (c *fakeClient) HealthCheck(ctx context.Context) (model.HealthStatus, string) {
	if err := c.enter(ctx); err != nil {
		return model.HealthError, err.Error()
	}
	return model.HealthHealthy, "ok"
}

type recordedTokens struct {
	mu    sync.Mutex
	saved map[string]model.Credentials
}

func (r *recordedTokens) PersistRefreshedToken(_ context.Context, connectionID string, creds model.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = map[string]model.Credentials{}
	}
	r.saved[connectionID] = creds
	return nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (r *recordedEvents) Record(_ context.Context, evt outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func conn(id string, provider model.Provider, staff string, primary, active bool) model.CalendarConnection {
	return model.CalendarConnection{
		ID:            id,
		TenantID:      "tenant-1",
		Provider:      provider,
		CalendarID:    "cal-" + id,
		StaffMemberID: staff,
		IsPrimary:     primary,
		Active:        active,
		Credentials:   model.Credentials{AccessToken: "at", RefreshToken: "rt"},
	}
}
