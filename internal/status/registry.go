// Package status tracks the indexing lifecycle of each (user, filename) pair.
package status

import (
	"context"
	"sync"
	"time"

	"ragportal/pkg/domain"
)

// Registry stores one status record per (user, filename) key. Set overwrites
// the record; Get returns domain.ErrNotFound when no upload was ever
// recorded for the key, so callers can distinguish "never uploaded" from
// "failed".
type Registry interface {
	Set(ctx context.Context, user, filename string, state domain.IndexState, detail string) error
	Get(ctx context.Context, user, filename string) (domain.StatusRecord, error)
}

// Memory is the in-process registry. Writes are atomic with respect to
// readers; a poller in the same process sees a write immediately.
type Memory struct {
	mu      sync.RWMutex
	records map[statusKey]domain.StatusRecord
}

type statusKey struct {
	user     string
	filename string
}

// NewMemory initializes an empty registry.
func NewMemory() *Memory {
	return &Memory{records: make(map[statusKey]domain.StatusRecord)}
}

// Set overwrites the record for (user, filename).
func (m *Memory) Set(ctx context.Context, user, filename string, state domain.IndexState, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[statusKey{user, filename}] = domain.StatusRecord{
		User:      user,
		Filename:  filename,
		State:     state,
		Detail:    detail,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// Get returns the record for (user, filename).
func (m *Memory) Get(ctx context.Context, user, filename string) (domain.StatusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[statusKey{user, filename}]
	if !ok {
		return domain.StatusRecord{}, domain.ErrNotFound
	}
	return record, nil
}
