package sessionstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newSQLiteStore returns a Store over a private in-memory SQLite database.
func newSQLiteStore(tb testing.TB, clock *fakeClock, opts ...func(*Config)) *Store {
	tb.Helper()

	backend, err := NewSQLiteBackend(context.Background(), ":memory:")
	require.NoError(tb, err)

	cfg := Config{Backend: backend}
	if clock != nil {
		cfg.Clock = clock.Now
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := NewStore(cfg)
	require.NoError(tb, err)
	tb.Cleanup(func() { store.Close() })
	return store
}

// MockBackend keeps records in a map and can be told to fail.
type MockBackend struct {
	mu      sync.Mutex
	records map[string]Record
	closed  bool

	// Err, when set, is returned by every call.
	Err error
	// DeleteErr, when set, is returned by Delete only.
	DeleteErr error

	reapCalls int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{records: make(map[string]Record)}
}

func (m *MockBackend) Insert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.records[rec.ID]; ok {
		return ErrKeyExists
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *MockBackend) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockBackend) Replace(ctx context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if _, ok := m.records[rec.ID]; !ok {
		return false, nil
	}
	m.records[rec.ID] = rec
	return true, nil
}

func (m *MockBackend) Touch(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	rec, ok := m.records[id]
	if !ok {
		return false, nil
	}
	rec.ExpiresAt = expiresAt
	m.records[id] = rec
	return true, nil
}

func (m *MockBackend) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *MockBackend) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapCalls++
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for id, rec := range m.records {
		if rec.ExpiresAt.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockBackend) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockBackend) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok
}

func (m *MockBackend) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MockBackend) reaps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reapCalls
}

func newMockStore(tb testing.TB, backend *MockBackend, opts ...func(*Config)) *Store {
	tb.Helper()
	cfg := Config{Backend: backend}
	for _, opt := range opts {
		opt(&cfg)
	}
	store, err := NewStore(cfg)
	require.NoError(tb, err)
	tb.Cleanup(func() { store.Close() })
	return store
}

// exclusiveBackend does no locking of its own. It counts how many calls are
// in flight and records every time a call starts while another is running.
type exclusiveBackend struct {
	records  sync.Map // id -> Record
	inFlight atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int64
	reaps    atomic.Int64
}

func (b *exclusiveBackend) enter() func() {
	if b.inFlight.Add(1) > 1 {
		b.overlaps.Add(1)
	}
	b.calls.Add(1)
	time.Sleep(50 * time.Microsecond)
	return func() { b.inFlight.Add(-1) }
}

func (b *exclusiveBackend) Insert(ctx context.Context, rec Record) error {
	defer b.enter()()
	if _, loaded := b.records.LoadOrStore(rec.ID, rec); loaded {
		return ErrKeyExists
	}
	return nil
}

func (b *exclusiveBackend) Get(ctx context.Context, id string) (*Record, error) {
	defer b.enter()()
	v, ok := b.records.Load(id)
	if !ok {
		return nil, nil
	}
	rec := v.(Record)
	return &rec, nil
}

func (b *exclusiveBackend) Replace(ctx context.Context, rec Record) (bool, error) {
	defer b.enter()()
	if _, ok := b.records.Load(rec.ID); !ok {
		return false, nil
	}
	b.records.Store(rec.ID, rec)
	return true, nil
}

func (b *exclusiveBackend) Touch(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	defer b.enter()()
	v, ok := b.records.Load(id)
	if !ok {
		return false, nil
	}
	rec := v.(Record)
	rec.ExpiresAt = expiresAt
	b.records.Store(id, rec)
	return true, nil
}

func (b *exclusiveBackend) Delete(ctx context.Context, id string) (bool, error) {
	defer b.enter()()
	_, ok := b.records.LoadAndDelete(id)
	return ok, nil
}

func (b *exclusiveBackend) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	defer b.enter()()
	b.reaps.Add(1)
	var n int64
	b.records.Range(func(k, v any) bool {
		if v.(Record).ExpiresAt.Before(before) {
			b.records.Delete(k)
			n++
		}
		return true
	})
	return n, nil
}

func (b *exclusiveBackend) Close() error {
	return nil
}

// tickingClock moves forward by one second on every read.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
