package sessionstore

import (
	"context"
	"sync"
	"time"
)

// serializer owns the single backing connection. Each call to do holds the
// lock for exactly one backend call, and do is never called while the lock
// is held. Once started, a backend call runs to completion even if the
// caller's context is cancelled.
type serializer struct {
	mu      sync.Mutex
	backend Backend
	closed  bool
	metrics *Metrics
}

func newSerializer(backend Backend, metrics *Metrics) *serializer {
	return &serializer{backend: backend, metrics: metrics}
}

func (s *serializer) do(ctx context.Context, op string, fn func(context.Context, Backend) error) error {
	waitStart := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.observeWait(time.Since(waitStart))

	if s.closed {
		return ErrClosed
	}

	start := time.Now()
	err := fn(context.WithoutCancel(ctx), s.backend)
	s.metrics.observe(op, time.Since(start), err)
	return err
}

func (s *serializer) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
