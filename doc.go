/*
Package sessionstore provides a durable, TTL-bearing session store for cookie
based authentication.

Request handlers and a background Reaper share one serialized connection to
the backing store. Every Store operation holds that connection for exactly
one backend call, so operations never interleave on it.

Key Features:

  - Pluggable backends: SQLite (CGO-free, the default), PostgreSQL, Redis and Memcached.
  - Schema migrations embedded and applied with goose on open.
  - Session keys carrying 256 bits of entropy from crypto/rand, URL-safe encoded.
  - JSON payloads by default, gob on request, through the Codec interface.
  - Typed failure categories (ErrBackend, ErrSerialization, ErrCorrupt,
    ErrRecordMissing) wrapped in *OpError.
  - Prometheus metrics for operations, lock wait and reaped records.
  - A cookie Manager with session fixation protection and secure cookie defaults.

Usage:

	backend, err := sessionstore.NewSQLiteBackend(ctx, "sessions.db")
	if err != nil {
		log.Fatal(err)
	}

	store, err := sessionstore.NewStore(sessionstore.Config{Backend: backend})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	reaper := sessionstore.NewReaper(store, sessionstore.ReaperConfig{})
	reaper.Start()
	defer reaper.Stop()

	key, err := store.Save(ctx, sessionstore.State{"user_id": "42"}, 24*time.Hour)

	state, ok, err := store.Load(ctx, key)

Expiry:

Load does not compare a record's expiry with the clock. Expired records stay
loadable until the Reaper removes them. Memcached is the exception: it drops
items itself once they expire.
*/
package sessionstore
