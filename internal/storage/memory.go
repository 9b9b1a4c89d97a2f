package storage

import (
	"context"
	"sort"
	"sync"

	"remindbot/internal/remind"
)

// Memory is the in-process backend. It backs tests and the
// "storage.backend: memory" config (no durability across restarts).
type Memory struct {
	mu    sync.Mutex
	users map[int64]map[string]remind.Record

	// FailUpserts makes every Upsert fail. Test hook for persistence
	// failure paths.
	FailUpserts bool
}

func NewMemory() *Memory {
	return &Memory{users: map[int64]map[string]remind.Record{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Get(_ context.Context, owner int64, id string) (remind.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[owner][id]
	return rec, ok, nil
}

func (m *Memory) Upsert(_ context.Context, owner int64, rec remind.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpserts {
		return ErrClosed
	}
	u := m.users[owner]
	if u == nil {
		u = map[string]remind.Record{}
		m.users[owner] = u
	}
	u[rec.ID] = rec
	return nil
}

func (m *Memory) Remove(_ context.Context, owner int64, id string) (remind.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[owner][id]
	if !ok {
		return remind.Record{}, false, nil
	}
	delete(m.users[owner], id)
	if len(m.users[owner]) == 0 {
		delete(m.users, owner)
	}
	return rec, true, nil
}

func (m *Memory) List(_ context.Context, owner int64) ([]remind.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]remind.Record, 0, len(m.users[owner]))
	for _, rec := range m.users[owner] {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (m *Memory) ListOwners(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make([]int64, 0, len(m.users))
	for owner, timers := range m.users {
		if len(timers) > 0 {
			owners = append(owners, owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}
