package sessionstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Morditux/sessionstore/internal/logging"
)

const defaultReapInterval = 100 * time.Second

// ReaperConfig configures a Reaper.
type ReaperConfig struct {
	Interval time.Duration // Defaults to 100s.
	Logger   *slog.Logger
}

// Reaper periodically removes expired records from a Store.
// A failed pass is logged and the next tick tries again.
type Reaper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a Reaper for store. It does nothing until Run or Start
// is called.
func NewReaper(store *Store, cfg ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReapInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Reaper{
		store:    store,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
}

// Run reaps on every tick until ctx is done. It always returns nil so it
// can sit in an errgroup next to a server without tearing it down.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.DebugContext(ctx, "session reaper started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.DebugContext(ctx, "session reaper stopped")
			return nil
		case <-ticker.C:
			_, _ = r.ReapNow(ctx)
		}
	}
}

// ReapNow runs a single pass. A pass that has started is not interrupted
// by ctx.
func (r *Reaper) ReapNow(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := r.store.Reap(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.DebugContext(ctx, "reap pass failed during shutdown", "error", err)
		} else {
			r.logger.WarnContext(ctx, "failed to reap expired sessions", "error", err)
		}
		return 0, err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "reaped expired sessions",
			"count", n,
			"duration", time.Since(start),
		)
	}
	return n, nil
}

// Start runs the reaper in a background goroutine. Calling Start on a
// running reaper does nothing.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
}

// Stop halts a reaper started with Start and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
