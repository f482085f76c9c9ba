package sessionstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Morditux/sessionstore/internal/logging"
)

// Operation names reported in OpError and metrics.
const (
	OpLoad      = "load"
	OpSave      = "save"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpUpdateTTL = "update_ttl"
	OpReap      = "reap"
)

const defaultKeyAttempts = 3

// Config configures a Store.
type Config struct {
	Backend      Backend
	Codec        Codec        // Defaults to JSONCodec.
	KeyGenerator KeyGenerator // Defaults to GenerateKey.
	Clock        func() time.Time
	Logger       *slog.Logger
	Metrics      *Metrics
	// MaxSessionBytes limits the encoded payload size. 0 means unlimited.
	MaxSessionBytes int
	// KeyAttempts bounds how many fresh keys Save tries when the backend
	// reports a collision. Defaults to 3.
	KeyAttempts int
}

// Store is the session store used by request handlers and the Reaper.
// It is safe for concurrent use; all backend access is serialized.
type Store struct {
	conn            *serializer
	codec           Codec
	newKey          KeyGenerator
	now             func() time.Time
	logger          *slog.Logger
	metrics         *Metrics
	maxSessionBytes int
	keyAttempts     int
}

// NewStore creates a Store around cfg.Backend. The Store takes ownership of
// the backend and closes it in Close.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, errors.New("sessionstore: backend is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = GenerateKey
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.KeyAttempts <= 0 {
		cfg.KeyAttempts = defaultKeyAttempts
	}

	return &Store{
		conn:            newSerializer(cfg.Backend, cfg.Metrics),
		codec:           cfg.Codec,
		newKey:          cfg.KeyGenerator,
		now:             cfg.Clock,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		maxSessionBytes: cfg.MaxSessionBytes,
		keyAttempts:     cfg.KeyAttempts,
	}, nil
}

// Load returns the state stored under key. A missing record is reported as
// ok == false with a nil error. Expiry is not checked here; expired records
// stay loadable until the Reaper removes them.
func (s *Store) Load(ctx context.Context, key string) (State, bool, error) {
	var rec *Record
	err := s.conn.do(ctx, OpLoad, func(ctx context.Context, b Backend) error {
		var err error
		rec, err = b.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, opError(OpLoad, ErrBackend, err)
	}
	if rec == nil {
		return nil, false, nil
	}

	if s.maxSessionBytes > 0 && len(rec.Payload) > s.maxSessionBytes {
		return nil, false, opError(OpLoad, ErrCorrupt, ErrSessionTooLarge)
	}
	state, err := s.codec.Decode(rec.Payload)
	if err != nil {
		return nil, false, opError(OpLoad, ErrCorrupt, err)
	}
	return state, true, nil
}

// Save stores state under a freshly generated key and returns the key.
func (s *Store) Save(ctx context.Context, state State, ttl time.Duration) (string, error) {
	return s.save(ctx, state, s.expiry(ttl))
}

func (s *Store) save(ctx context.Context, state State, expiresAt time.Time) (string, error) {
	payload, err := s.encode(state)
	if err != nil {
		return "", opError(OpSave, ErrSerialization, err)
	}

	for attempt := 1; ; attempt++ {
		key, err := s.newKey()
		if err != nil {
			return "", opError(OpSave, ErrBackend, err)
		}

		rec := Record{ID: key, Payload: payload, ExpiresAt: expiresAt}
		err = s.conn.do(ctx, OpSave, func(ctx context.Context, b Backend) error {
			return b.Insert(ctx, rec)
		})
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrKeyExists) || attempt >= s.keyAttempts {
			return "", opError(OpSave, ErrBackend, err)
		}
		s.logger.WarnContext(ctx, "session key collision, generating a new key", "attempt", attempt)
	}
}

// Update replaces the payload and expiry of the record stored under key and
// returns the same key.
func (s *Store) Update(ctx context.Context, key string, state State, ttl time.Duration) (string, error) {
	return s.update(ctx, key, state, s.expiry(ttl))
}

func (s *Store) update(ctx context.Context, key string, state State, expiresAt time.Time) (string, error) {
	payload, err := s.encode(state)
	if err != nil {
		return "", opError(OpUpdate, ErrSerialization, err)
	}

	rec := Record{ID: key, Payload: payload, ExpiresAt: expiresAt}
	err = s.conn.do(ctx, OpUpdate, func(ctx context.Context, b Backend) error {
		return matched(b.Replace(ctx, rec))
	})
	if err != nil {
		return "", s.writeError(OpUpdate, err)
	}
	return key, nil
}

// Delete removes the record stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.conn.do(ctx, OpDelete, func(ctx context.Context, b Backend) error {
		return matched(b.Delete(ctx, key))
	})
	if err != nil {
		return s.writeError(OpDelete, err)
	}
	return nil
}

// UpdateTTL moves the expiry of the record stored under key to now + ttl
// without touching its payload.
func (s *Store) UpdateTTL(ctx context.Context, key string, ttl time.Duration) error {
	return s.touch(ctx, key, s.expiry(ttl))
}

func (s *Store) touch(ctx context.Context, key string, expiresAt time.Time) error {
	err := s.conn.do(ctx, OpUpdateTTL, func(ctx context.Context, b Backend) error {
		return matched(b.Touch(ctx, key, expiresAt))
	})
	if err != nil {
		return s.writeError(OpUpdateTTL, err)
	}
	return nil
}

// Reap deletes every record whose expiry is strictly before now and returns
// how many were removed.
func (s *Store) Reap(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	var n int64
	err := s.conn.do(ctx, OpReap, func(ctx context.Context, b Backend) error {
		var err error
		n, err = b.DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, opError(OpReap, ErrBackend, err)
	}
	s.metrics.addReaped(n)
	return n, nil
}

// Close closes the backend. Operations after Close fail with ErrClosed.
func (s *Store) Close() error {
	return s.conn.close()
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	return s.now().UTC().Add(ttl)
}

func (s *Store) encode(state State) ([]byte, error) {
	payload, err := s.codec.Encode(state)
	if err != nil {
		return nil, err
	}
	if s.maxSessionBytes > 0 && len(payload) > s.maxSessionBytes {
		return nil, ErrSessionTooLarge
	}
	return payload, nil
}

func (s *Store) writeError(op string, err error) error {
	if errors.Is(err, ErrRecordMissing) {
		return opError(op, ErrRecordMissing, nil)
	}
	return opError(op, ErrBackend, err)
}

// matched turns a backend's "no row matched" answer into ErrRecordMissing.
func matched(found bool, err error) error {
	if err != nil {
		return err
	}
	if !found {
		return ErrRecordMissing
	}
	return nil
}
