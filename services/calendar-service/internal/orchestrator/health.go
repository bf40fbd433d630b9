package orchestrator

import (
	"context"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HealthCheck checks every active connection concurrently. Overall status is healthy when
// all checks pass, degraded when some do, and error when none do or nothing is active.
func (o *Orchestrator) HealthCheck(ctx context.Context, tenant model.TenantCalendars) model.HealthReport {
	const op = "health_check"
	ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("tenant.id", tenant.TenantID)))
	defer span.End()

	active := tenant.ActiveConnections()
	report := model.HealthReport{OverallStatus: model.HealthError, Connections: make([]model.ConnectionHealth, 0, len(active))}
	if len(active) == 0 {
		return report
	}

	type checkResult struct {
		status  model.HealthStatus
		details string
	}
	results := fanOut(ctx, o, op, active, func(ctx context.Context, _ model.CalendarConnection, client providers.Client) (checkResult, error) {
		status, details := client.HealthCheck(ctx)
		return checkResult{status: status, details: details}, nil
	})

	healthy := 0
	for _, r := range results {
		h := model.ConnectionHealth{
			ConnectionID: r.conn.ID,
			Provider:     r.conn.Provider,
			CalendarID:   r.conn.CalendarID,
			Status:       r.value.status,
			Details:      r.value.details,
		}
		if r.err != nil {
			h.Status = model.HealthError
			h.Details = r.err.Error()
		}
		if h.Status == model.HealthHealthy {
			healthy++
		} else {
			h.Status = model.HealthError
		}
		report.Connections = append(report.Connections, h)
	}

	switch healthy {
	case len(results):
		report.OverallStatus = model.HealthHealthy
	case 0:
		report.OverallStatus = model.HealthError
	default:
		report.OverallStatus = model.HealthDegraded
	}
	return report
}
