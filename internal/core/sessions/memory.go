package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

var _ core.SessionStore = (*MemoryStore)(nil)

// MemoryStore is the in-process session registry used when no Redis URL is configured.
// Sessions do not survive a restart. Closed sessions are dropped by Expired once they
// have been closed for longer than closedRetention.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.IngestionSession
	closedAt map[string]time.Time

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.IngestionSession),
		closedAt: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *models.IngestionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	if s.State != models.SessionOpen {
		m.closedAt[s.ID] = m.now()
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.IngestionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, s *models.IngestionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return core.ErrNotFound
	}
	m.sessions[s.ID] = *s
	if s.State != models.SessionOpen {
		if _, seen := m.closedAt[s.ID]; !seen {
			m.closedAt[s.ID] = m.now()
		}
	}
	return nil
}

// Expired also forgets sessions closed more than closedRetention ago.
func (m *MemoryStore) Expired(_ context.Context, now time.Time) ([]models.IngestionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, at := range m.closedAt {
		if m.now().Sub(at) > closedRetention {
			delete(m.sessions, id)
			delete(m.closedAt, id)
		}
	}

	var out []models.IngestionSession
	for _, s := range m.sessions {
		if s.State == models.SessionOpen && s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
