package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

// Memory is an in-process Registry for local development and tests.
type Memory struct {
	mu    sync.Mutex
	conns []model.CalendarConnection
}

func NewMemory(seed ...model.CalendarConnection) *Memory {
	return &Memory{conns: append([]model.CalendarConnection(nil), seed...)}
}

func (m *Memory) ListConnections(_ context.Context, tenantID string) ([]model.CalendarConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CalendarConnection
	for _, c := range m.conns {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) SaveConnection(_ context.Context, conn model.CalendarConnection) (model.CalendarConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn.Active = true
	idx := -1
	for i, c := range m.conns {
		if c.TenantID == conn.TenantID && c.Provider == conn.Provider && c.CalendarID == conn.CalendarID {
			idx = i
			conn.ID = c.ID
			if conn.Credentials.RefreshToken == "" {
				conn.Credentials.RefreshToken = c.Credentials.RefreshToken
			}
			break
		}
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.IsPrimary {
		for i := range m.conns {
			if m.conns[i].TenantID == conn.TenantID {
				m.conns[i].IsPrimary = false
			}
		}
	}
	if idx >= 0 {
		m.conns[idx] = conn
	} else {
		m.conns = append(m.conns, conn)
	}
	return conn, nil
}

func (m *Memory) Deactivate(_ context.Context, tenantID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conns {
		if m.conns[i].ID == connectionID && m.conns[i].TenantID == tenantID {
			m.conns[i].Active = false
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) PersistRefreshedToken(_ context.Context, connectionID string, creds model.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conns {
		if m.conns[i].ID == connectionID {
			m.conns[i].Credentials.AccessToken = creds.AccessToken
			if creds.RefreshToken != "" {
				m.conns[i].Credentials.RefreshToken = creds.RefreshToken
			}
			return nil
		}
	}
	return ErrNotFound
}
