package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process map+mutex EventStore. Suitable for tests
// and single-process deployments; state does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Kind]map[string]*Record
	counter uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Kind]map[string]*Record)}
}

func (m *MemoryStore) nextID() string {
	m.counter++
	return fmt.Sprintf("%020d-%s", m.counter, uuid.NewString()[:8])
}

func (m *MemoryStore) Append(ctx context.Context, kind Kind, record *Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[kind] == nil {
		m.records[kind] = make(map[string]*Record)
	}
	id := m.nextID()
	now := time.Now().UTC()
	clone := *record
	clone.ID = id
	clone.Kind = kind
	clone.CreatedAt = now
	clone.UpdatedAt = now
	if clone.Data == nil {
		clone.Data = make(map[string]interface{})
	}
	m.records[kind][id] = &clone
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[kind][id]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, kind Kind, id, expectedStatus, newStatus string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.records[kind]
	if bucket == nil {
		return fmt.Errorf("store: record %s/%s not found", kind, id)
	}
	r, ok := bucket[id]
	if !ok {
		return fmt.Errorf("store: record %s/%s not found", kind, id)
	}
	if expectedStatus != "" && r.Status != expectedStatus {
		return &CASError{ID: id, Expected: expectedStatus, Actual: r.Status}
	}
	r.Status = newStatus
	r.UpdatedAt = time.Now().UTC()
	for k, v := range fields {
		r.Data[k] = v
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, kind Kind, filter Filter, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records[kind] {
		if filter.matches(*r) {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Scan(ctx context.Context, kind Kind, sinceID string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records[kind] {
		if r.ID > sinceID {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ EventStore = (*MemoryStore)(nil)
