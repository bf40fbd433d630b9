package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/locking"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/outbox"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
)

var (
	day     = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	testNow = day.Add(-24 * time.Hour)
)

type harness struct {
	google  *fakeProvider
	outlook *fakeProvider
	tokens  *recordedTokens
	events  *recordedEvents
	locker  *locking.MemoryLocker
	orch    *Orchestrator
}

func newHarness(cfg Config) *harness {
	h := &harness{
		google:  newFakeProvider(model.ProviderGoogle),
		outlook: newFakeProvider(model.ProviderOutlook),
		tokens:  &recordedTokens{},
		events:  &recordedEvents{},
		locker:  locking.NewMemoryLocker(),
	}
	h.orch = New(cfg, []providers.Provider{h.google, h.outlook},
		WithTokenStore(h.tokens),
		WithEventRecorder(h.events),
		WithLocker(h.locker),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testNow }),
	)
	return h
}

func tenantOf(conns ...model.CalendarConnection) model.TenantCalendars {
	return model.TenantCalendars{TenantID: "tenant-1", Timezone: "UTC", Connections: conns}
}

func haircutAt(start time.Time) model.BookingRequest {
	return model.BookingRequest{
		Service:        model.Service{Name: "Haircut", Duration: time.Hour},
		Customer:       model.Customer{Name: "Ada", Email: "ada@example.com"},
		PreferredStart: start,
	}
}

func TestSelectOptimalConnection(t *testing.T) {
	conns := []model.CalendarConnection{
		conn("a", model.ProviderGoogle, "alice", true, false),
		conn("b", model.ProviderGoogle, "bob", false, true),
		conn("c", model.ProviderOutlook, "bob", true, true),
		conn("d", model.ProviderOutlook, "carol", false, true),
	}
	cases := []struct {
		name     string
		staff    string
		provider model.Provider
		want     string
	}{
		{"primary wins without filters", "", "", "c"},
		{"staff narrows", "carol", "", "d"},
		{"inactive staff match is ignored", "alice", "", "c"},
		{"provider narrows within staff", "bob", model.ProviderGoogle, "b"},
		{"unknown provider is skipped", "bob", "yahoo", "c"},
		{"provider without staff", "", model.ProviderGoogle, "b"},
	}
	for _, tc := range cases {
		got, ok := SelectOptimalConnection(conns, tc.staff, tc.provider)
		if !ok || got.ID != tc.want {
			t.Fatalf("%s: got %q ok=%v, want %q", tc.name, got.ID, ok, tc.want)
		}
	}

	if _, ok := SelectOptimalConnection([]model.CalendarConnection{conns[0]}, "", ""); ok {
		t.Fatalf("expected no selection when nothing is active")
	}
}

func TestSelectOptimalConnection_NeverInactiveAndHonoursStaff(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	staff := []string{"", "alice", "bob"}
	provs := []model.Provider{model.ProviderGoogle, model.ProviderOutlook}

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(6)
		conns := make([]model.CalendarConnection, n)
		for i := range conns {
			conns[i] = conn(string(rune('a'+i)), provs[rng.Intn(2)], staff[rng.Intn(3)], rng.Intn(2) == 0, rng.Intn(3) != 0)
		}
		wantStaff := staff[rng.Intn(3)]

		got, ok := SelectOptimalConnection(conns, wantStaff, provs[rng.Intn(2)])
		anyActive, staffActive := false, false
		for _, c := range conns {
			if c.Active {
				anyActive = true
				if wantStaff != "" && c.StaffMemberID == wantStaff {
					staffActive = true
				}
			}
		}
		if ok != anyActive {
			t.Fatalf("iteration %d: ok=%v but anyActive=%v", iter, ok, anyActive)
		}
		if !ok {
			continue
		}
		if !got.Active {
			t.Fatalf("iteration %d: selected inactive connection %q", iter, got.ID)
		}
		if staffActive && got.StaffMemberID != wantStaff {
			t.Fatalf("iteration %d: staff %q available but got %q", iter, wantStaff, got.StaffMemberID)
		}
	}
}

func TestCheckUnifiedAvailability_CrossProviderBlocking(t *testing.T) {
	h := newHarness(Config{})
	nine := day.Add(9 * time.Hour)
	h.google.busy("g", nine, nine.Add(30*time.Minute))
	h.outlook.busy("o", nine.Add(30*time.Minute), nine.Add(time.Hour))

	res, err := h.orch.CheckUnifiedAvailability(context.Background(),
		tenantOf(conn("g", model.ProviderGoogle, "", true, true), conn("o", model.ProviderOutlook, "", false, true)),
		AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour)})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(res.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(res.Slots))
	}
	for _, s := range res.Slots {
		if s.Available {
			t.Fatalf("slot %v should be blocked", s.Start)
		}
		if len(s.Sources) != 2 {
			t.Fatalf("expected both sources, got %+v", s.Sources)
		}
	}
	if !res.Slots[0].Start.Before(res.Slots[1].Start) {
		t.Fatalf("slots not sorted")
	}
}

func TestCheckUnifiedAvailability_PartialFailureKeepsOthers(t *testing.T) {
	h := newHarness(Config{})
	nine := day.Add(9 * time.Hour)
	h.google.busy("g1", nine, nine.Add(30*time.Minute))
	h.google.setFailing("g2")

	tenant := tenantOf(
		conn("g1", model.ProviderGoogle, "", true, true),
		conn("g2", model.ProviderGoogle, "", false, true),
		conn("o", model.ProviderOutlook, "", false, true),
	)
	res, err := h.orch.CheckUnifiedAvailability(context.Background(), tenant, AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour)})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(res.Degraded) != 1 || res.Degraded[0] != "g2" {
		t.Fatalf("unexpected degraded list: %v", res.Degraded)
	}
	if len(res.Slots) != 2 || res.Slots[0].Available || !res.Slots[1].Available {
		t.Fatalf("unexpected slots: %+v", res.Slots)
	}
	for _, s := range res.Slots {
		if len(s.Sources) != 2 {
			t.Fatalf("failed connection should not contribute: %+v", s.Sources)
		}
	}
}

func TestCheckUnifiedAvailability_HangingBranchTimesOut(t *testing.T) {
	h := newHarness(Config{BranchTimeout: 50 * time.Millisecond})
	h.outlook.hanging["slow"] = true
	nine := day.Add(9 * time.Hour)

	started := time.Now()
	res, err := h.orch.CheckUnifiedAvailability(context.Background(),
		tenantOf(conn("g", model.ProviderGoogle, "", true, true), conn("slow", model.ProviderOutlook, "", false, true)),
		AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour)})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("hanging provider stalled the query for %v", elapsed)
	}
	if len(res.Slots) != 2 || !res.Slots[0].Available {
		t.Fatalf("healthy connection should still answer: %+v", res.Slots)
	}
	if len(res.Degraded) != 1 || res.Degraded[0] != "slow" {
		t.Fatalf("unexpected degraded: %v", res.Degraded)
	}
}

func TestCheckUnifiedAvailability_RunsConnectionsConcurrently(t *testing.T) {
	h := newHarness(Config{Concurrency: 4})
	h.google.hold = 50 * time.Millisecond
	nine := day.Add(9 * time.Hour)

	tenant := tenantOf(
		conn("g1", model.ProviderGoogle, "", true, true),
		conn("g2", model.ProviderGoogle, "", false, true),
		conn("g3", model.ProviderGoogle, "", false, true),
		conn("g4", model.ProviderGoogle, "", false, true),
	)
	if _, err := h.orch.CheckUnifiedAvailability(context.Background(), tenant, AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour)}); err != nil {
		t.Fatalf("availability: %v", err)
	}
	h.google.mu.Lock()
	defer h.google.mu.Unlock()
	if h.google.maxInFlight < 2 {
		t.Fatalf("expected overlapping provider calls, max in flight %d", h.google.maxInFlight)
	}
	if h.google.maxInFlight > 4 {
		t.Fatalf("concurrency limit exceeded: %d", h.google.maxInFlight)
	}
}

func TestCheckUnifiedAvailability_Errors(t *testing.T) {
	h := newHarness(Config{})
	nine := day.Add(9 * time.Hour)

	_, err := h.orch.CheckUnifiedAvailability(context.Background(), tenantOf(conn("g", model.ProviderGoogle, "", true, false)), AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour)})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.TenantID != "tenant-1" || opErr.Op != "check_unified_availability" {
		t.Fatalf("expected OpError context, got %v", err)
	}

	_, err = h.orch.CheckUnifiedAvailability(context.Background(), tenantOf(conn("g", model.ProviderGoogle, "", true, true)), AvailabilityQuery{TimeMin: nine, TimeMax: nine})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = h.orch.CheckUnifiedAvailability(context.Background(), tenantOf(conn("g", model.ProviderGoogle, "", true, true)), AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour), Timezone: "Mars/Olympus"})
	if !errors.As(err, &valErr) || valErr.Field != "timezone" {
		t.Fatalf("expected timezone ValidationError, got %v", err)
	}
}

func TestCreateBooking_ThenSlotIsBlocked(t *testing.T) {
	h := newHarness(Config{})
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true), conn("o", model.ProviderOutlook, "", false, true))
	start := day.Add(14 * time.Hour)

	res, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if !res.Success || res.Event == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Event.ConnectionID != "g" || res.Event.Provider != model.ProviderGoogle || res.Event.CalendarID != "cal-g" {
		t.Fatalf("event not attributed: %+v", res.Event)
	}

	again, err := h.orch.CheckUnifiedAvailability(context.Background(), tenant, AvailabilityQuery{TimeMin: start, TimeMax: start.Add(time.Hour), SlotDuration: time.Hour})
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if len(again.Slots) != 1 || again.Slots[0].Available {
		t.Fatalf("booked slot should be unavailable: %+v", again.Slots)
	}

	if types := h.events.types(); len(types) != 1 || types[0] != outbox.TopicBookingCreated {
		t.Fatalf("unexpected recorded events: %v", types)
	}
	if lease, err := locking.Acquire(context.Background(), h.locker, locking.WindowKeys("booking:g", start, start.Add(time.Hour), time.Hour), locking.Options{}); err != nil {
		t.Fatalf("lease should be released after booking: %v", err)
	} else {
		_ = lease.Release(context.Background())
	}
}

func TestCreateBooking_ConflictOnOtherProviderReturnsAlternatives(t *testing.T) {
	h := newHarness(Config{})
	start := day.Add(14 * time.Hour)
	// Outlook is busy although the selected Google calendar is free.
	h.outlook.busy("o", start.Add(-30*time.Minute), start.Add(time.Hour))
	h.google.busy("g", start.Add(2*time.Hour), start.Add(3*time.Hour))
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true), conn("o", model.ProviderOutlook, "", false, true))

	res, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), "")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if res.Success || res.Event != nil || res.Error == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if h.google.createCount() != 0 {
		t.Fatalf("no write should be attempted on conflict")
	}
	if len(res.Alternatives) == 0 || len(res.Alternatives) > 5 || len(res.Alternatives) != len(conflict.Alternatives) {
		t.Fatalf("unexpected alternatives: %d", len(res.Alternatives))
	}
	want := []time.Time{start.Add(time.Hour), start.Add(3 * time.Hour)}
	for i, w := range want {
		if !res.Alternatives[i].Start.Equal(w) {
			t.Fatalf("alternative %d at %v, want %v", i, res.Alternatives[i].Start, w)
		}
	}
	for _, alt := range res.Alternatives {
		if !alt.Available {
			t.Fatalf("alternative not available: %+v", alt)
		}
		if alt.Start.Before(start) || alt.End.After(start.Add(7*24*time.Hour)) {
			t.Fatalf("alternative outside look-ahead: %+v", alt)
		}
	}
}

func TestCreateBooking_PrefersStaffAndProvider(t *testing.T) {
	h := newHarness(Config{})
	tenant := tenantOf(
		conn("g", model.ProviderGoogle, "alice", true, true),
		conn("o", model.ProviderOutlook, "bob", false, true),
	)
	req := haircutAt(day.Add(10 * time.Hour))
	req.Service.PreferredStaff = "bob"

	res, err := h.orch.CreateBooking(context.Background(), tenant, req, "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if res.Event.ConnectionID != "o" || res.Event.StaffMemberID != "bob" {
		t.Fatalf("booked on wrong connection: %+v", res.Event)
	}
}

func TestCreateBooking_ValidationAndConfiguration(t *testing.T) {
	h := newHarness(Config{})
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true))

	bad := haircutAt(day.Add(10 * time.Hour))
	bad.Service.Duration = 0
	_, err := h.orch.CreateBooking(context.Background(), tenant, bad, "")
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = h.orch.CreateBooking(context.Background(), tenantOf(conn("g", model.ProviderGoogle, "", true, false)), haircutAt(day.Add(10*time.Hour)), "")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	unknown := conn("y", "yahoo", "", true, true)
	_, err = h.orch.CreateBooking(context.Background(), tenantOf(unknown), haircutAt(day.Add(10*time.Hour)), "")
	if !errors.Is(err, ErrAvailabilityUnknown) && !errors.As(err, &cfgErr) {
		t.Fatalf("expected failure for unsupported provider, got %v", err)
	}
}

func TestCreateBooking_ProviderFailurePropagates(t *testing.T) {
	h := newHarness(Config{})
	h.google.setFailing("g")
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true), conn("o", model.ProviderOutlook, "", false, true))

	res, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(day.Add(10*time.Hour)), "")
	if !errors.Is(err, errProviderDown) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.ConnectionID != "g" {
		t.Fatalf("expected connection context, got %v", err)
	}
	if res.Success {
		t.Fatalf("unexpected success")
	}
}

func TestCreateBooking_WindowLeaseSerializes(t *testing.T) {
	h := newHarness(Config{LockWait: 20 * time.Millisecond})
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true))
	start := day.Add(14 * time.Hour)

	held, err := locking.Acquire(context.Background(), h.locker, locking.WindowKeys("booking:g", start, start.Add(time.Hour), time.Hour), locking.Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("hold lease: %v", err)
	}
	_, err = h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), "")
	if !errors.Is(err, ErrBookingInProgress) {
		t.Fatalf("expected ErrBookingInProgress, got %v", err)
	}
	_ = held.Release(context.Background())

	if _, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), ""); err != nil {
		t.Fatalf("booking after release: %v", err)
	}
}

func TestConfig_LockTTLCoversBookingWork(t *testing.T) {
	cfg := Config{BranchTimeout: 20 * time.Second, LockTTL: 30 * time.Second}.withDefaults()
	if cfg.LockTTL != time.Minute {
		t.Fatalf("expected lock ttl raised to three branch timeouts, got %v", cfg.LockTTL)
	}
	if b := cfg.leaseBudget(); b >= cfg.LockTTL || b < 2*cfg.BranchTimeout {
		t.Fatalf("lease budget %v must cover a read and a write and end before %v", b, cfg.LockTTL)
	}

	cfg = Config{}.withDefaults()
	if cfg.LockTTL != 30*time.Second || cfg.MaxWindow != 31*24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg = (Config{LookAhead: 60 * 24 * time.Hour}).withDefaults(); cfg.MaxWindow != cfg.LookAhead {
		t.Fatalf("max window must not be below look-ahead: %v", cfg.MaxWindow)
	}
}

func TestCreateBooking_HungWriteStopsBeforeLeaseExpires(t *testing.T) {
	h := newHarness(Config{BranchTimeout: 20 * time.Millisecond, LockTTL: time.Millisecond})
	h.google.writeHang = true
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true))
	start := day.Add(15 * time.Hour)
	ttl := h.orch.cfg.LockTTL

	began := time.Now()
	res, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the write to be cut off, got %v", err)
	}
	if res.Success {
		t.Fatalf("unexpected success")
	}

	h.google.mu.Lock()
	deadline := h.google.writeDeadline
	h.google.mu.Unlock()
	if deadline.IsZero() {
		t.Fatalf("write ran without a deadline")
	}
	if deadline.After(began.Add(ttl)) {
		t.Fatalf("write deadline %v outlives the %v lease taken at %v", deadline, ttl, began)
	}

	h.google.mu.Lock()
	h.google.writeHang = false
	h.google.mu.Unlock()
	if _, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), ""); err != nil {
		t.Fatalf("lease must be released after the cut-off: %v", err)
	}
}

func TestCheckUnifiedAvailability_RejectsOversizedQueries(t *testing.T) {
	h := newHarness(Config{MaxWindow: 7 * 24 * time.Hour})
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true))
	nine := day.Add(9 * time.Hour)

	cases := []struct {
		name  string
		q     AvailabilityQuery
		field string
	}{
		{"window too wide", AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(8 * 24 * time.Hour)}, "time range"},
		{"slot too short", AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour), SlotDuration: time.Minute}, "slot_minutes"},
	}
	for _, tc := range cases {
		_, err := h.orch.CheckUnifiedAvailability(context.Background(), tenant, tc.q)
		var valErr *ValidationError
		if !errors.As(err, &valErr) || valErr.Field != tc.field {
			t.Fatalf("%s: expected %s ValidationError, got %v", tc.name, tc.field, err)
		}
	}

	res, err := h.orch.CheckUnifiedAvailability(context.Background(), tenant,
		AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(7 * 24 * time.Hour), SlotDuration: MinSlotDuration})
	if err != nil {
		t.Fatalf("window at the cap: %v", err)
	}
	if len(res.Slots) != 7*24*12 {
		t.Fatalf("unexpected slot count %d", len(res.Slots))
	}
}

func TestCreateBooking_ConcurrentRequestsBookOnce(t *testing.T) {
	h := newHarness(Config{LockWait: 5 * time.Second})
	tenant := tenantOf(conn("g", model.ProviderGoogle, "", true, true))
	start := day.Add(14 * time.Hour)

	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := h.orch.CreateBooking(context.Background(), tenant, haircutAt(start), "")
			errs <- err
		}()
	}
	successes := 0
	for i := 0; i < 5; i++ {
		err := <-errs
		var conflict *ConflictError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &conflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || h.google.createCount() != 1 {
		t.Fatalf("expected exactly one booking, got %d successes and %d writes", successes, h.google.createCount())
	}
}

func TestCancelBooking(t *testing.T) {
	h := newHarness(Config{})
	inactive := conn("g", model.ProviderGoogle, "", true, false)

	if err := h.orch.CancelBooking(context.Background(), tenantOf(inactive), "g", "ev-9"); err != nil {
		t.Fatalf("cancel on inactive connection: %v", err)
	}
	h.google.mu.Lock()
	deleted := append([]string(nil), h.google.deletes...)
	h.google.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != "ev-9" {
		t.Fatalf("unexpected deletes: %v", deleted)
	}
	if types := h.events.types(); len(types) != 1 || types[0] != outbox.TopicBookingCancelled {
		t.Fatalf("unexpected recorded events: %v", types)
	}

	var cfgErr *ConfigurationError
	if err := h.orch.CancelBooking(context.Background(), tenantOf(inactive), "missing", "ev-9"); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	var valErr *ValidationError
	if err := h.orch.CancelBooking(context.Background(), tenantOf(inactive), "g", " "); !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	h.google.setFailing("g")
	if err := h.orch.CancelBooking(context.Background(), tenantOf(inactive), "g", "ev-10"); !errors.Is(err, errProviderDown) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestListUnifiedEvents_SortedAcrossProviders(t *testing.T) {
	h := newHarness(Config{})
	h.google.busy("g", day.Add(11*time.Hour), day.Add(12*time.Hour))
	h.outlook.busy("o", day.Add(9*time.Hour), day.Add(10*time.Hour))
	h.google.busy("g", day.Add(8*time.Hour), day.Add(9*time.Hour))
	h.outlook.setFailing("o2")

	res, err := h.orch.ListUnifiedEvents(context.Background(), tenantOf(
		conn("g", model.ProviderGoogle, "", true, true),
		conn("o", model.ProviderOutlook, "", false, true),
		conn("o2", model.ProviderOutlook, "", false, true),
	), ListQuery{TimeMin: day, TimeMax: day.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(res.Events))
	}
	wantConn := []string{"g", "o", "g"}
	for i, ev := range res.Events {
		if ev.ConnectionID != wantConn[i] {
			t.Fatalf("event %d from %q, want %q", i, ev.ConnectionID, wantConn[i])
		}
		if i > 0 && ev.Start.Before(res.Events[i-1].Start) {
			t.Fatalf("events not sorted")
		}
	}
	if len(res.Degraded) != 1 || res.Degraded[0] != "o2" {
		t.Fatalf("unexpected degraded: %v", res.Degraded)
	}
}

func TestListUnifiedEvents_RejectsNegativeMaxResults(t *testing.T) {
	h := newHarness(Config{})
	_, err := h.orch.ListUnifiedEvents(context.Background(), tenantOf(conn("g", model.ProviderGoogle, "", true, true)), ListQuery{MaxResults: -1})
	var valErr *ValidationError
	if !errors.As(err, &valErr) || valErr.Field != "max_results" {
		t.Fatalf("expected max_results ValidationError, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(Config{})
	g := conn("g", model.ProviderGoogle, "", true, true)
	o := conn("o", model.ProviderOutlook, "", false, true)

	if rep := h.orch.HealthCheck(context.Background(), tenantOf(g, o)); rep.OverallStatus != model.HealthHealthy || len(rep.Connections) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	h.outlook.setFailing("o")
	rep := h.orch.HealthCheck(context.Background(), tenantOf(g, o))
	if rep.OverallStatus != model.HealthDegraded {
		t.Fatalf("expected degraded, got %s", rep.OverallStatus)
	}
	if rep.Connections[1].Status != model.HealthError || rep.Connections[1].Details == "" {
		t.Fatalf("unexpected connection health: %+v", rep.Connections[1])
	}

	h.google.setFailing("g")
	if rep := h.orch.HealthCheck(context.Background(), tenantOf(g, o)); rep.OverallStatus != model.HealthError {
		t.Fatalf("expected error, got %s", rep.OverallStatus)
	}

	if rep := h.orch.HealthCheck(context.Background(), tenantOf()); rep.OverallStatus != model.HealthError || len(rep.Connections) != 0 {
		t.Fatalf("zero connections should be error: %+v", rep)
	}
}

func TestRefreshedTokensAreForwardedPerConnection(t *testing.T) {
	h := newHarness(Config{})
	h.google.refreshOn["g"] = true
	nine := day.Add(9 * time.Hour)

	_, err := h.orch.CheckUnifiedAvailability(context.Background(),
		tenantOf(conn("g", model.ProviderGoogle, "", true, true), conn("g2", model.ProviderGoogle, "", false, true)),
		AvailabilityQuery{TimeMin: nine, TimeMax: nine.Add(time.Hour)})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}

	h.tokens.mu.Lock()
	defer h.tokens.mu.Unlock()
	if len(h.tokens.saved) != 1 || h.tokens.saved["g"].AccessToken != "rotated-g" {
		t.Fatalf("unexpected persisted tokens: %+v", h.tokens.saved)
	}
}
