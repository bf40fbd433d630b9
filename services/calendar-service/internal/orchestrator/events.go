package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ListQuery struct {
	TimeMin time.Time
	TimeMax time.Time
	// MaxResults caps events per connection.
	MaxResults int
}

// UnifiedEvents is the merged listing plus the connections that could not be read.
type UnifiedEvents struct {
	Events   []model.UnifiedCalendarEvent
	Degraded []string
}

// ListUnifiedEvents lists every active connection concurrently and returns all events
// sorted by start. A failing connection contributes no events.
func (o *Orchestrator) ListUnifiedEvents(ctx context.Context, tenant model.TenantCalendars, q ListQuery) (UnifiedEvents, error) {
	const op = "list_unified_events"
	ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("tenant.id", tenant.TenantID)))
	defer span.End()

	if !q.TimeMin.IsZero() && !q.TimeMax.IsZero() && !q.TimeMax.After(q.TimeMin) {
		return UnifiedEvents{}, opError(op, tenant, "", &ValidationError{Field: "time range", Reason: "time_max must be after time_min"})
	}
	if q.MaxResults < 0 {
		return UnifiedEvents{}, opError(op, tenant, "", &ValidationError{Field: "max_results", Reason: "must not be negative"})
	}
	active := tenant.ActiveConnections()
	if len(active) == 0 {
		return UnifiedEvents{}, opError(op, tenant, "", &ConfigurationError{Reason: "no active calendar connections"})
	}

	results := fanOut(ctx, o, op, active, func(ctx context.Context, conn model.CalendarConnection, client providers.Client) ([]model.CalendarEvent, error) {
		return client.ListEvents(ctx, conn.CalendarID, providers.ListQuery{
			TimeMin:    q.TimeMin,
			TimeMax:    q.TimeMax,
			MaxResults: q.MaxResults,
		})
	})

	var out UnifiedEvents
	for _, r := range results {
		if r.err != nil {
			out.Degraded = append(out.Degraded, r.conn.ID)
			o.logger.Warn("connection events unavailable",
				"tenant_id", tenant.TenantID,
				"connection_id", r.conn.ID,
				"provider", r.conn.Provider,
				"err", r.err,
			)
			continue
		}
		for _, e := range r.value {
			out.Events = append(out.Events, model.Unify(e, r.conn))
		}
	}
	sort.SliceStable(out.Events, func(i, j int) bool {
		return out.Events[i].Start.Before(out.Events[j].Start)
	})
	return out, nil
}
