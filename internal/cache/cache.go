// Package cache provides the ingestion cache: a small key/value store scoped
// by integration that survives across scan attempts.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// IngestionCache stores string values per integration. Implementations must
// be safe for concurrent use within one process.
type IngestionCache interface {
	Enabled() bool
	Read(ctx context.Context, key domain.IntegrationKey, name string) (string, bool, error)
	Write(ctx context.Context, key domain.IntegrationKey, name, value string) error
}

// Disabled is a cache that never stores anything.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Read(context.Context, domain.IntegrationKey, string) (string, bool, error) {
	return "", false, nil
}

func (Disabled) Write(context.Context, domain.IntegrationKey, string, string) error {
	return nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process cache, used by tests and single-shot runs.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemory creates a memory cache. A zero ttl keeps entries forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *Memory) Enabled() bool { return true }

func (m *Memory) Read(_ context.Context, key domain.IntegrationKey, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key.String()+"/"+name]
	if !ok || (!e.expiresAt.IsZero() && m.now().After(e.expiresAt)) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Write(_ context.Context, key domain.IntegrationKey, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[key.String()+"/"+name] = e
	return nil
}

// Delete removes an entry. It exists for tests that simulate partial writes.
func (m *Memory) Delete(key domain.IntegrationKey, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.String()+"/"+name)
}
