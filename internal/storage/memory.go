package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It backs dry runs, alert
// simulation and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	records       map[string]MatchRecord
	notifications []NotificationRecord
	nextID        int64
	locked        map[int64]bool
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		records: make(map[string]MatchRecord),
		locked:  make(map[int64]bool),
	}
}

// GetAll returns all records ordered by match date then id. The fresh flag has
// no effect since nothing is cached.
func (m *MemoryStore) GetAll(_ context.Context, _ bool) ([]MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MatchRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MatchDate.Equal(out[j].MatchDate) {
			return out[i].MatchDate.Before(out[j].MatchDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetByID returns ErrNotFound for unknown ids.
func (m *MemoryStore) GetByID(_ context.Context, id string) (MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return MatchRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Upsert inserts or fully replaces a record.
func (m *MemoryStore) Upsert(_ context.Context, rec MatchRecord) error {
	if rec.ID == "" {
		return errors.New("upsert match record: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec = rec.Clone()
	rec.UpdatedAt = m.now()
	m.records[rec.ID] = rec
	return nil
}

// InsertNotification appends to the audit trail.
func (m *MemoryStore) InsertNotification(_ context.Context, rec NotificationRecord) (NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	rec.CreatedAt = m.now()
	m.notifications = append(m.notifications, rec)
	return rec, nil
}

// ListRecentNotifications returns the newest notifications first.
func (m *MemoryStore) ListRecentNotifications(_ context.Context, limit int) ([]NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NotificationRecord, 0, limit)
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.notifications[i])
	}
	return out, nil
}

// DeleteNotificationsBefore drops notifications created before olderThan.
func (m *MemoryStore) DeleteNotificationsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.notifications[:0]
	for _, rec := range m.notifications {
		if !rec.CreatedAt.Before(olderThan) {
			kept = append(kept, rec)
		}
	}
	m.notifications = kept
	return nil
}

// TryAdvisoryLock emulates a process-local advisory lock.
func (m *MemoryStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked[key] {
		return nil, false, nil
	}
	m.locked[key] = true
	return func() {
		m.mu.Lock()
		delete(m.locked, key)
		m.mu.Unlock()
	}, true, nil
}

var (
	_ HistoryStore      = (*MemoryStore)(nil)
	_ NotificationStore = (*MemoryStore)(nil)
	_ AdvisoryLocker    = (*MemoryStore)(nil)
)
