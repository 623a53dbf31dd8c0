package repository

import (
	"context"
	"sync"
	"time"

	"github.com/magefree/tabletop-server-go/internal/game"
)

// MemoryStore keeps snapshots in process memory. It is the default store and
// the one used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]game.Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]game.Session)}
}

// Load returns a copy of the stored snapshot.
func (m *MemoryStore) Load(ctx context.Context, id string) (game.Session, error) {
	if err := ctx.Err(); err != nil {
		return game.Session{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return game.Session{}, ErrNotFound
	}
	return s.Clone(), nil
}

// Save overwrites the snapshot for s.ID.
func (m *MemoryStore) Save(ctx context.Context, s game.Session) (game.Session, error) {
	if err := ctx.Err(); err != nil {
		return game.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return s, nil
}

// Delete removes the snapshot and reports whether one existed.
func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

// ListActive returns sessions still in the lobby, newest first.
func (m *MemoryStore) ListActive(ctx context.Context) ([]game.Session, error) {
	return m.filter(ctx, 0, func(s game.Session) bool { return s.Phase == game.PhaseLobby })
}

// ListRecent returns up to limit sessions of any phase, newest first.
func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]game.Session, error) {
	return m.filter(ctx, normalizeLimit(limit), func(game.Session) bool { return true })
}

// ListStale returns sessions in phase last updated before cutoff.
func (m *MemoryStore) ListStale(ctx context.Context, phase game.Phase, cutoff time.Time) ([]game.Session, error) {
	return m.filter(ctx, 0, func(s game.Session) bool {
		return s.Phase == phase && s.UpdatedAt.Before(cutoff)
	})
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) filter(ctx context.Context, limit int, keep func(game.Session) bool) ([]game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]game.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	m.mu.RUnlock()

	sortRecent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
