package railsaudit

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	jobKey string
	unix   int64
}

// Memory is a mutex-protected in-process audit registry.
type Memory struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
}

// NewMemory builds an empty in-memory audit registry.
func NewMemory() *Memory {
	return &Memory{records: make(map[memoryKey]Record)}
}

func keyFor(jobKey string, firing time.Time) memoryKey {
	return memoryKey{jobKey: jobKey, unix: firing.Unix()}
}

func (m *Memory) Log(_ context.Context, jobKey string, firing time.Time, nodeID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[keyFor(jobKey, firing)] = Record{
		JobKey:       jobKey,
		FiringAt:     firing,
		DispatchedAt: time.Now(),
		NodeID:       nodeID,
		Status:       status,
	}
	return nil
}

func (m *Memory) Find(_ context.Context, jobKey string, firing time.Time) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[keyFor(jobKey, firing)]
	return rec, ok, nil
}

func (m *Memory) Dispatched(ctx context.Context, jobKey string, firing time.Time) (bool, error) {
	_, ok, err := m.Find(ctx, jobKey, firing)
	return ok, err
}

// Cleanup deletes records whose firing instant is older than olderThan
// relative to now.
func (m *Memory) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for k, rec := range m.records {
		if rec.FiringAt.Before(cutoff) {
			delete(m.records, k)
			removed++
		}
	}
	return removed, nil
}

var (
	_ Registry = (*Memory)(nil)
	_ Cleaner  = (*Memory)(nil)
)
