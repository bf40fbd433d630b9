package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/availability"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AvailabilityQuery struct {
	TimeMin  time.Time
	TimeMax  time.Time
	Timezone string
	// SlotDuration defaults to the configured granularity.
	SlotDuration time.Duration
}

// UnifiedAvailability is the merged view plus the connections that could not be read.
type UnifiedAvailability struct {
	Slots    []model.UnifiedAvailabilitySlot
	Degraded []string
}

// CheckUnifiedAvailability queries every active connection concurrently and AND-merges
// the slots per exact window. Unreachable connections contribute nothing and are listed
// in Degraded.
func (o *Orchestrator) CheckUnifiedAvailability(ctx context.Context, tenant model.TenantCalendars, q AvailabilityQuery) (UnifiedAvailability, error) {
	const op = "check_unified_availability"
	ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("tenant.id", tenant.TenantID)))
	defer span.End()

	q, err := o.normalizeQuery(tenant, q)
	if err != nil {
		return UnifiedAvailability{}, opError(op, tenant, "", err)
	}
	active := tenant.ActiveConnections()
	if len(active) == 0 {
		return UnifiedAvailability{}, opError(op, tenant, "", &ConfigurationError{Reason: "no active calendar connections"})
	}
	return o.unifiedAvailability(ctx, op, tenant, active, q), nil
}

func (o *Orchestrator) normalizeQuery(tenant model.TenantCalendars, q AvailabilityQuery) (AvailabilityQuery, error) {
	if q.TimeMin.IsZero() || q.TimeMax.IsZero() {
		return q, &ValidationError{Field: "time range", Reason: "time_min and time_max are required"}
	}
	if !q.TimeMax.After(q.TimeMin) {
		return q, &ValidationError{Field: "time range", Reason: "time_max must be after time_min"}
	}
	if q.TimeMax.Sub(q.TimeMin) > o.cfg.MaxWindow {
		return q, &ValidationError{Field: "time range", Reason: fmt.Sprintf("window must not exceed %s", o.cfg.MaxWindow)}
	}
	if q.SlotDuration != 0 && q.SlotDuration < MinSlotDuration {
		return q, &ValidationError{Field: "slot_minutes", Reason: fmt.Sprintf("must be at least %d", int(MinSlotDuration/time.Minute))}
	}
	if q.Timezone == "" {
		q.Timezone = tenant.Timezone
	}
	if _, err := providers.LoadLocation(q.Timezone); err != nil {
		return q, &ValidationError{Field: "timezone", Reason: err.Error()}
	}
	if q.SlotDuration <= 0 {
		q.SlotDuration = o.cfg.Granularity
	}
	return q, nil
}

func (o *Orchestrator) unifiedAvailability(ctx context.Context, op string, tenant model.TenantCalendars, conns []model.CalendarConnection, q AvailabilityQuery) UnifiedAvailability {
	results := fanOut(ctx, o, op, conns, func(ctx context.Context, conn model.CalendarConnection, client providers.Client) ([]model.AvailabilitySlot, error) {
		return client.CheckAvailability(ctx, providers.AvailabilityQuery{
			CalendarIDs:  []string{conn.CalendarID},
			TimeMin:      q.TimeMin,
			TimeMax:      q.TimeMax,
			Timezone:     q.Timezone,
			SlotDuration: q.SlotDuration,
		})
	})

	var out UnifiedAvailability
	perConnection := make([][]model.AvailabilitySlot, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			out.Degraded = append(out.Degraded, r.conn.ID)
			o.logger.Warn("connection availability degraded",
				"tenant_id", tenant.TenantID,
				"connection_id", r.conn.ID,
				"provider", r.conn.Provider,
				"calendar_id", r.conn.CalendarID,
				"err", r.err,
			)
		}
		slots := r.value
		for i := range slots {
			slots[i].Provider = r.conn.Provider
			slots[i].ConnectionID = r.conn.ID
			slots[i].StaffMemberID = r.conn.StaffMemberID
		}
		perConnection = append(perConnection, slots)
	}
	out.Slots = availability.Merge(perConnection...)
	return out
}
