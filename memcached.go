package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedBackend stores session payloads in Memcached.
// Memcached expires items itself, so DeleteExpired has nothing to do and a
// record stops being loadable as soon as its expiry passes.
type MemcachedBackend struct {
	client *memcache.Client
	now    func() time.Time
}

// MemcachedConfig holds configuration for the Memcached backend.
type MemcachedConfig struct {
	Servers      []string
	Timeout      time.Duration // Timeout for Memcached operations. 0 means no timeout.
	MaxIdleConns int
}

// NewMemcachedBackend creates a MemcachedBackend with a 1 second operation timeout.
func NewMemcachedBackend(servers ...string) *MemcachedBackend {
	return NewMemcachedBackendWithConfig(MemcachedConfig{
		Servers: servers,
		// Security: Set a default timeout to prevent indefinite hanging if Memcached is down.
		Timeout: 1 * time.Second,
	})
}

// NewMemcachedBackendWithConfig creates a MemcachedBackend with custom configuration.
func NewMemcachedBackendWithConfig(cfg MemcachedConfig) *MemcachedBackend {
	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout
	if cfg.MaxIdleConns > 0 {
		client.MaxIdleConns = cfg.MaxIdleConns
	}
	return &MemcachedBackend{client: client, now: time.Now}
}

func (m *MemcachedBackend) Insert(ctx context.Context, rec Record) error {
	err := m.client.Add(&memcache.Item{
		Key:        rec.ID,
		Value:      rec.Payload,
		Expiration: calculateMemcachedExpiration(m.now(), rec.ExpiresAt),
	})
	if errors.Is(err, memcache.ErrNotStored) {
		return ErrKeyExists
	}
	if err != nil {
		return fmt.Errorf("failed to save to memcached: %w", err)
	}
	return nil
}

func (m *MemcachedBackend) Get(ctx context.Context, id string) (*Record, error) {
	item, err := m.client.Get(id)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from memcached: %w", err)
	}
	return &Record{ID: id, Payload: item.Value}, nil
}

func (m *MemcachedBackend) Replace(ctx context.Context, rec Record) (bool, error) {
	err := m.client.Replace(&memcache.Item{
		Key:        rec.ID,
		Value:      rec.Payload,
		Expiration: calculateMemcachedExpiration(m.now(), rec.ExpiresAt),
	})
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update in memcached: %w", err)
	}
	return true, nil
}

func (m *MemcachedBackend) Touch(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	err := m.client.Touch(id, calculateMemcachedExpiration(m.now(), expiresAt))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to touch in memcached: %w", err)
	}
	return true, nil
}

func (m *MemcachedBackend) Delete(ctx context.Context, id string) (bool, error) {
	err := m.client.Delete(id)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete from memcached: %w", err)
	}
	return true, nil
}

// DeleteExpired is a no-op for Memcached as it handles expiration automatically.
func (m *MemcachedBackend) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// Close drops the client's idle connections.
func (m *MemcachedBackend) Close() error {
	return m.client.Close()
}

// calculateMemcachedExpiration calculates the expiration value for Memcached.
// Memcached treats values > 30 days (60*60*24*30 seconds) as absolute Unix timestamps.
// Values <= 30 days are treated as a delta from the current time, 0 means
// "never" and negative values expire the item immediately.
func calculateMemcachedExpiration(now, expiresAt time.Time) int32 {
	const maxDelta = 30 * 24 * 60 * 60 // 30 days in seconds

	duration := expiresAt.Sub(now)
	if duration <= 0 {
		return -1
	}

	// If duration exceeds 30 days, we MUST use absolute Unix timestamp.
	// Otherwise, Memcached will interpret a large delta as a timestamp in 1970 (expired).
	// The protocol field is 32 bits, so expiries past 2038 are clamped.
	if duration > maxDelta*time.Second {
		return int32(min(expiresAt.Unix(), math.MaxInt32))
	}

	// Round up so sub-second remainders never become 0 ("never expires").
	return int32((duration + time.Second - 1) / time.Second)
}
