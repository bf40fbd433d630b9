package orchestrator

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/calendarhub/libs/otel"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/availability"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/locking"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/outbox"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"go.opentelemetry.io/otel/trace"
)

// TokenStore persists credentials rotated during a provider call.
type TokenStore interface {
	PersistRefreshedToken(ctx context.Context, connectionID string, creds model.Credentials) error
}

// EventRecorder stores state-change events for asynchronous publication.
type EventRecorder interface {
	Record(ctx context.Context, evt outbox.Event) error
}

// MinSlotDuration is the shortest slot a caller may request.
const MinSlotDuration = 5 * time.Minute

type Config struct {
	Granularity     time.Duration
	LookAhead       time.Duration
	MaxAlternatives int
	Concurrency     int
	BranchTimeout   time.Duration
	// MaxWindow caps time_max - time_min on availability queries. It is never below LookAhead.
	MaxWindow time.Duration

	// LockTTL is raised to at least three branch timeouts: one availability read, one
	// write and slack. CreateBooking gives up before the lease can expire.
	LockTTL    time.Duration
	LockWait   time.Duration
	LockBucket time.Duration
}

func (c Config) withDefaults() Config {
	if c.Granularity <= 0 {
		c.Granularity = availability.DefaultGranularity
	}
	if c.LookAhead <= 0 {
		c.LookAhead = providers.DefaultLookAhead
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = providers.DefaultMaxAlternatives
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.BranchTimeout <= 0 {
		c.BranchTimeout = providers.DefaultRequestTimeout
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = 31 * 24 * time.Hour
	}
	if c.MaxWindow < c.LookAhead {
		c.MaxWindow = c.LookAhead
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if floor := 3 * c.BranchTimeout; c.LockTTL < floor {
		c.LockTTL = floor
	}
	if c.LockWait <= 0 {
		c.LockWait = 5 * time.Second
	}
	if c.LockBucket <= 0 {
		c.LockBucket = time.Hour
	}
	return c
}

// leaseBudget is how long booking work may run once the window lease is held.
func (c Config) leaseBudget() time.Duration {
	return c.LockTTL - c.LockTTL/5
}

// Orchestrator coordinates one tenant's connections across providers. Every call opens
// fresh provider clients, so no credential state is shared between connections or requests.
type Orchestrator struct {
	cfg       Config
	providers map[model.Provider]providers.Provider
	tokens    TokenStore
	locker    locking.Locker
	events    EventRecorder
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithTokenStore(s TokenStore) Option       { return func(o *Orchestrator) { o.tokens = s } }
func WithLocker(l locking.Locker) Option       { return func(o *Orchestrator) { o.locker = l } }
func WithEventRecorder(r EventRecorder) Option { return func(o *Orchestrator) { o.events = r } }
func WithClock(now func() time.Time) Option    { return func(o *Orchestrator) { o.now = now } }
func WithLogger(logger *slog.Logger) Option    { return func(o *Orchestrator) { o.logger = logger } }

func New(cfg Config, provs []providers.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		providers: make(map[model.Provider]providers.Provider, len(provs)),
		locker:    locking.NewMemoryLocker(),
		logger:    slog.Default(),
		tracer:    otelx.Tracer("calendar-orchestrator"),
		now:       time.Now,
	}
	for _, p := range provs {
		o.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provider returns the registered provider for name.
func (o *Orchestrator) Provider(name model.Provider) (providers.Provider, bool) {
	p, ok := o.providers[name]
	return p, ok
}

func (o *Orchestrator) open(conn model.CalendarConnection) (providers.Client, error) {
	p, ok := o.providers[conn.Provider]
	if !ok {
		return nil, &ConfigurationError{Reason: "unsupported provider " + string(conn.Provider)}
	}
	var onRefresh providers.TokenRefreshFunc
	if o.tokens != nil {
		connID := conn.ID
		onRefresh = func(ctx context.Context, creds model.Credentials) error {
			return o.tokens.PersistRefreshedToken(context.WithoutCancel(ctx), connID, creds)
		}
	}
	return p.Open(conn, onRefresh), nil
}

// SelectOptimalConnection narrows the candidates step by step: active, then staff member,
// then provider, then primary. A step that would leave nothing is skipped. The first
// remaining candidate in input order wins. ok is false only when nothing is active.
func SelectOptimalConnection(conns []model.CalendarConnection, staffMemberID string, preferred model.Provider) (model.CalendarConnection, bool) {
	candidates := make([]model.CalendarConnection, 0, len(conns))
	for _, c := range conns {
		if c.Active {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return model.CalendarConnection{}, false
	}
	if staffMemberID != "" {
		candidates = narrow(candidates, func(c model.CalendarConnection) bool { return c.StaffMemberID == staffMemberID })
	}
	if preferred != "" {
		candidates = narrow(candidates, func(c model.CalendarConnection) bool { return c.Provider == preferred })
	}
	candidates = narrow(candidates, func(c model.CalendarConnection) bool { return c.IsPrimary })
	return candidates[0], true
}

func narrow(in []model.CalendarConnection, keep func(model.CalendarConnection) bool) []model.CalendarConnection {
	var out []model.CalendarConnection
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return in
	}
	return out
}

func (o *Orchestrator) record(ctx context.Context, evt outbox.Event, err error) {
	if o.events == nil {
		return
	}
	if err == nil {
		err = o.events.Record(context.WithoutCancel(ctx), evt)
	}
	if err != nil {
		o.logger.Error("recording calendar event failed", "event_type", evt.EventType, "aggregate_id", evt.AggregateID, "err", err)
	}
}
