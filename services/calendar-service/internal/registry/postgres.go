package registry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/calendarhub/libs/db"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/outbox"
)

// OutboxWriter inserts an event inside the caller's transaction.
type OutboxWriter interface {
	Insert(ctx context.Context, q db.Querier, evt outbox.Event) error
}

// Postgres is the production Registry. Tokens are sealed when a Sealer is configured.
type Postgres struct {
	pool   *db.Pool
	sealer *Sealer
	outbox OutboxWriter
	logger *slog.Logger
}

func NewPostgres(pool *db.Pool, sealer *Sealer, outboxWriter OutboxWriter, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, sealer: sealer, outbox: outboxWriter, logger: logger}
}

func (p *Postgres) ListConnections(ctx context.Context, tenantID string) ([]model.CalendarConnection, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, tenant_id, provider, calendar_id, display_name, staff_member_id,
		       access_token, refresh_token, is_primary, active
		FROM calendar_connections
		WHERE tenant_id = $1
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarConnection
	for rows.Next() {
		var (
			c        model.CalendarConnection
			provider string
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &provider, &c.CalendarID, &c.DisplayName, &c.StaffMemberID,
			&c.Credentials.AccessToken, &c.Credentials.RefreshToken, &c.IsPrimary, &c.Active); err != nil {
			return nil, err
		}
		c.Provider = model.Provider(provider)
		p.openCredentials(ctx, &c)
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SaveConnection also writes a connection-linked outbox event in the same transaction.
func (p *Postgres) SaveConnection(ctx context.Context, conn model.CalendarConnection) (model.CalendarConnection, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return conn, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing string
	err = tx.QueryRow(ctx, `
		SELECT id FROM calendar_connections
		WHERE tenant_id = $1 AND provider = $2 AND calendar_id = $3
		FOR UPDATE
	`, conn.TenantID, string(conn.Provider), conn.CalendarID).Scan(&existing)
	switch {
	case err == nil:
		conn.ID = existing
	case db.IsNotFound(err):
		if conn.ID == "" {
			conn.ID = uuid.NewString()
		}
	default:
		return conn, err
	}
	conn.Active = true

	sealed, err := p.seal(conn.ID, conn.Credentials)
	if err != nil {
		return conn, err
	}
	if conn.IsPrimary {
		if _, err := tx.Exec(ctx, `
			UPDATE calendar_connections SET is_primary = false, updated_at = now()
			WHERE tenant_id = $1 AND id <> $2 AND is_primary
		`, conn.TenantID, conn.ID); err != nil {
			return conn, err
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO calendar_connections (id, tenant_id, provider, calendar_id, display_name, staff_member_id,
		                                  access_token, refresh_token, is_primary, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			staff_member_id = EXCLUDED.staff_member_id,
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN calendar_connections.refresh_token ELSE EXCLUDED.refresh_token END,
			is_primary = EXCLUDED.is_primary,
			active = true,
			updated_at = now()
	`, conn.ID, conn.TenantID, string(conn.Provider), conn.CalendarID, conn.DisplayName, conn.StaffMemberID,
		sealed.AccessToken, sealed.RefreshToken, conn.IsPrimary); err != nil {
		return conn, err
	}

	if p.outbox != nil {
		evt, err := outbox.NewEvent(outbox.TopicConnectionLinked, outbox.AggregateConnection, conn.ID, outbox.ConnectionLinked{
			TenantID:      conn.TenantID,
			ConnectionID:  conn.ID,
			Provider:      string(conn.Provider),
			CalendarID:    conn.CalendarID,
			StaffMemberID: conn.StaffMemberID,
		})
		if err != nil {
			return conn, err
		}
		if err := p.outbox.Insert(ctx, tx, evt); err != nil {
			return conn, err
		}
	}
	return conn, tx.Commit(ctx)
}

func (p *Postgres) Deactivate(ctx context.Context, tenantID, connectionID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE calendar_connections SET active = false, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, connectionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PersistRefreshedToken keeps the stored refresh token when the provider did not rotate it.
func (p *Postgres) PersistRefreshedToken(ctx context.Context, connectionID string, creds model.Credentials) error {
	sealed, err := p.seal(connectionID, creds)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE calendar_connections
		SET access_token = $2,
		    refresh_token = CASE WHEN $3 = '' THEN refresh_token ELSE $3 END,
		    updated_at = now()
		WHERE id = $1
	`, connectionID, sealed.AccessToken, sealed.RefreshToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) seal(connectionID string, creds model.Credentials) (model.Credentials, error) {
	access, err := p.sealer.Seal(creds.AccessToken, connectionID)
	if err != nil {
		return creds, err
	}
	refresh, err := p.sealer.Seal(creds.RefreshToken, connectionID)
	if err != nil {
		return creds, err
	}
	return model.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// openCredentials clears tokens that cannot be unsealed so the connection reads as
// needing re-authorization instead of failing every query for the tenant.
func (p *Postgres) openCredentials(ctx context.Context, c *model.CalendarConnection) {
	creds, err := p.open(c.ID, c.Credentials)
	if err != nil {
		p.logger.WarnContext(ctx, "unseal credentials failed", "connection_id", c.ID, "tenant_id", c.TenantID, "err", err)
		creds = model.Credentials{}
	}
	c.Credentials = creds
}

func (p *Postgres) open(connectionID string, creds model.Credentials) (model.Credentials, error) {
	access, err := p.sealer.Open(creds.AccessToken, connectionID)
	if err != nil {
		return creds, err
	}
	refresh, err := p.sealer.Open(creds.RefreshToken, connectionID)
	if err != nil {
		return creds, err
	}
	return model.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}
