package sessionstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestManager_SaveChoosesOperation(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMockBackend()
	store := newMockStore(t, backend, func(c *Config) { c.Clock = clock.Now })
	mgr := NewManager(ManagerConfig{Store: store, TTL: time.Minute})
	r := httptest.NewRequest("GET", "/", nil)

	s := mgr.New()
	s.Set("user_id", "42")
	require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))
	key := s.ID
	require.True(t, IsValidKey(key))

	t.Run("clean session only moves expiry", func(t *testing.T) {
		clock.Advance(30 * time.Second)
		require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))
		require.Equal(t, key, s.ID)

		rec, err := backend.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, clock.Now().Add(time.Minute).Equal(rec.ExpiresAt))
		require.JSONEq(t, `{"user_id":"42"}`, string(rec.Payload))
	})

	t.Run("dirty session rewrites payload", func(t *testing.T) {
		s.Set("role", "admin")
		require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))
		require.Equal(t, key, s.ID)

		state, ok, err := store.Load(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, State{"user_id": "42", "role": "admin"}, state)
	})

	t.Run("reaped session is saved again", func(t *testing.T) {
		clock.Advance(time.Hour)
		n, err := store.Reap(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		w := httptest.NewRecorder()
		require.NoError(t, mgr.Save(w, r, s))
		require.NotEqual(t, key, s.ID)
		require.Equal(t, s.ID, sessionCookie(t, w).Value)

		state, ok, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, State{"user_id": "42", "role": "admin"}, state)
	})
}

func TestManager_GetPropagatesBackendErrors(t *testing.T) {
	backend := NewMockBackend()
	mgr := NewManager(ManagerConfig{Store: newMockStore(t, backend)})

	key, err := GenerateKey()
	require.NoError(t, err)
	backend.setErr(errors.New("connection reset"))

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "session_id", Value: key})

	s, err := mgr.Get(r)
	require.ErrorIs(t, err, ErrBackend)
	require.Nil(t, s)
}

func TestManager_GetUnknownKey(t *testing.T) {
	mgr := NewManager(ManagerConfig{Store: newMockStore(t, NewMockBackend())})

	key, err := GenerateKey()
	require.NoError(t, err)
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "session_id", Value: key})

	s, err := mgr.Get(r)
	require.NoError(t, err)
	require.True(t, s.IsNew())
	require.Empty(t, s.ID, "unknown keys must not be adopted")
}

func TestManager_RegenerateFailsClosed(t *testing.T) {
	backend := NewMockBackend()
	mgr := NewManager(ManagerConfig{Store: newMockStore(t, backend)})
	r := httptest.NewRequest("GET", "/", nil)

	s := mgr.New()
	s.Set("user_id", "42")
	require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))

	backend.DeleteErr = errors.New("delete refused")

	w := httptest.NewRecorder()
	err := mgr.Regenerate(w, r, s)
	require.ErrorIs(t, err, ErrBackend)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	last := cookies[len(cookies)-1]
	require.Equal(t, "session_id", last.Name)
	require.Empty(t, last.Value)
	require.Negative(t, last.MaxAge)
}

func TestManager_RegenerateNewSession(t *testing.T) {
	backend := NewMockBackend()
	mgr := NewManager(ManagerConfig{Store: newMockStore(t, backend)})

	s := mgr.New()
	s.Set("user_id", "42")
	require.NoError(t, mgr.Regenerate(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), s))
	require.False(t, s.IsNew())
	require.Equal(t, 1, backend.len())
}

func TestManager_Destroy(t *testing.T) {
	t.Run("missing record is not an error", func(t *testing.T) {
		backend := NewMockBackend()
		mgr := NewManager(ManagerConfig{Store: newMockStore(t, backend)})
		r := httptest.NewRequest("GET", "/", nil)

		s := mgr.New()
		require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))
		_, err := backend.Delete(context.Background(), s.ID)
		require.NoError(t, err)

		require.NoError(t, mgr.Destroy(httptest.NewRecorder(), r, s))
	})

	t.Run("backend failure still clears cookie and values", func(t *testing.T) {
		backend := NewMockBackend()
		mgr := NewManager(ManagerConfig{Store: newMockStore(t, backend)})
		r := httptest.NewRequest("GET", "/", nil)

		s := mgr.New()
		s.Set("user_id", "42")
		require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))

		backend.setErr(errors.New("connection reset"))
		w := httptest.NewRecorder()
		require.ErrorIs(t, mgr.Destroy(w, r, s), ErrBackend)

		require.Negative(t, sessionCookie(t, w).MaxAge)
		_, ok := s.Get("user_id")
		require.False(t, ok)
	})
}

func TestManager_Defaults(t *testing.T) {
	mgr := NewManager(ManagerConfig{Store: newMockStore(t, NewMockBackend())})
	require.Equal(t, 24*time.Hour, mgr.TTL())
	require.Equal(t, "session_id", mgr.cookie)
	require.Equal(t, "/", mgr.cookiePath)
	require.True(t, mgr.httpOnly)
	require.Equal(t, http.SameSiteLaxMode, mgr.sameSite)
}

func TestManager_SaveSurvivesClientDisconnect(t *testing.T) {
	store := newSQLiteStore(t, newFakeClock())
	mgr := NewManager(ManagerConfig{Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)

	s := mgr.New()
	s.Set("user_id", "42")
	require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))

	s.Set("role", "admin")
	require.NoError(t, mgr.Save(httptest.NewRecorder(), r, s))

	state, ok, err := store.Load(context.Background(), s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, State{"user_id": "42", "role": "admin"}, state)
}

func TestManager_CookieExpiryMatchesRecord(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	backend := NewMockBackend()
	store := newMockStore(t, backend, func(c *Config) { c.Clock = clock.Now })
	mgr := NewManager(ManagerConfig{Store: store, TTL: time.Hour})
	r := httptest.NewRequest("GET", "/", nil)

	s := mgr.New()
	s.Set("user_id", "42")

	check := func(name string) {
		t.Helper()
		w := httptest.NewRecorder()
		require.NoError(t, mgr.Save(w, r, s), name)

		rec, err := backend.Get(context.Background(), s.ID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.True(t, rec.ExpiresAt.Equal(s.ExpiresAt), "%s: stored %v, session %v", name, rec.ExpiresAt, s.ExpiresAt)
		require.True(t, sessionCookie(t, w).Expires.Equal(s.ExpiresAt), name)
	}

	check("insert")
	s.Set("role", "admin")
	check("update")
	check("touch")
}
