package registry

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

var ErrNotFound = errors.New("calendar connection not found")

// Registry stores tenants' calendar connections and their credentials.
type Registry interface {
	// ListConnections returns every connection of the tenant, active or not, oldest first.
	ListConnections(ctx context.Context, tenantID string) ([]model.CalendarConnection, error)
	// SaveConnection inserts conn, or updates the connection with the same tenant, provider
	// and calendar id, and marks it active. An empty ID is assigned.
	SaveConnection(ctx context.Context, conn model.CalendarConnection) (model.CalendarConnection, error)
	// Deactivate soft-disables a connection. Rows are never deleted.
	Deactivate(ctx context.Context, tenantID, connectionID string) error
	PersistRefreshedToken(ctx context.Context, connectionID string, creds model.Credentials) error
}

// Tenant loads the per-request view the orchestrator works on.
func Tenant(ctx context.Context, r Registry, tenantID, timezone string) (model.TenantCalendars, error) {
	conns, err := r.ListConnections(ctx, tenantID)
	if err != nil {
		return model.TenantCalendars{}, err
	}
	if timezone == "" {
		timezone = "UTC"
	}
	return model.TenantCalendars{TenantID: tenantID, Timezone: timezone, Connections: conns}, nil
}
