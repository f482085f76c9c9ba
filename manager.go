package sessionstore

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Manager binds Store records to HTTP cookies.
type Manager struct {
	store        *Store
	ttl          time.Duration
	cookie       string
	cookiePath   string
	cookieDomain string
	httpOnly     bool
	secure       *bool
	sameSite     http.SameSite
}

// ManagerConfig configures a Manager. Store is required.
type ManagerConfig struct {
	Store        *Store
	TTL          time.Duration
	CookieName   string
	CookiePath   string
	CookieDomain string
	HttpOnly     *bool
	Secure       *bool
	SameSite     http.SameSite
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "session_id"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}

	m := &Manager{
		store:        cfg.Store,
		ttl:          cfg.TTL,
		cookie:       cfg.CookieName,
		cookiePath:   cfg.CookiePath,
		cookieDomain: cfg.CookieDomain,
		httpOnly:     true,
		secure:       cfg.Secure,
		sameSite:     http.SameSiteLaxMode,
	}

	if cfg.HttpOnly != nil {
		m.httpOnly = *cfg.HttpOnly
	}
	if cfg.SameSite != 0 {
		m.sameSite = cfg.SameSite
	}

	// Browsers reject SameSite=None cookies without the Secure attribute.
	if m.sameSite == http.SameSiteNoneMode {
		secure := true
		m.secure = &secure
	}

	return m
}

// TTL returns the lifetime given to saved sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get returns the session named by the request cookie. A missing cookie, a
// malformed key or an unknown key all yield a new empty session.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookie)
	if err != nil {
		return m.New(), nil
	}

	// Malformed keys never reach the backend.
	if !IsValidKey(cookie.Value) {
		return m.New(), nil
	}

	state, ok, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return m.New(), nil
	}

	return &Session{ID: cookie.Value, Values: state}, nil
}

// New returns an empty session. It gets its key on first Save.
func (m *Manager) New() *Session {
	return &Session{Values: make(State), isNew: true}
}

// Save persists s and sets the session cookie. New sessions are inserted,
// modified ones rewritten and untouched ones only have their expiry pushed
// back. A record reaped since it was loaded is inserted again under a new key.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	if !s.isNew && !IsValidKey(s.ID) {
		return ErrInvalidSessionID
	}

	expiresAt := m.store.expiry(m.ttl)
	var err error
	switch {
	case s.isNew:
		err = m.insert(ctx, s, expiresAt)
	case s.dirty:
		_, err = m.store.update(ctx, s.ID, s.Values, expiresAt)
	default:
		err = m.store.touch(ctx, s.ID, expiresAt)
	}
	if !s.isNew && errors.Is(err, ErrRecordMissing) {
		err = m.insert(ctx, s, expiresAt)
	}
	if err != nil {
		return err
	}

	s.isNew = false
	s.dirty = false
	s.ExpiresAt = expiresAt

	http.SetCookie(w, m.newCookie(r, s.ID, s.ExpiresAt, int(m.ttl.Seconds())))
	return nil
}

func (m *Manager) insert(ctx context.Context, s *Session, expiresAt time.Time) error {
	key, err := m.store.save(ctx, s.Values, expiresAt)
	if err != nil {
		return err
	}
	s.ID = key
	return nil
}

// Regenerate moves the session to a fresh key to prevent session fixation.
// If the old record cannot be removed the new one is removed too and the
// cookie is cleared, leaving the client logged out.
func (m *Manager) Regenerate(w http.ResponseWriter, r *http.Request, s *Session) error {
	s.mu.Lock()
	oldID, wasNew := s.ID, s.isNew
	s.isNew = true
	s.mu.Unlock()

	if err := m.Save(w, r, s); err != nil {
		s.mu.Lock()
		s.ID, s.isNew = oldID, wasNew
		s.mu.Unlock()
		return err
	}

	if wasNew {
		return nil
	}

	err := m.store.Delete(r.Context(), oldID)
	if err == nil || errors.Is(err, ErrRecordMissing) {
		return nil
	}

	s.mu.Lock()
	newID := s.ID
	s.mu.Unlock()
	_ = m.store.Delete(r.Context(), newID)
	http.SetCookie(w, m.newCookie(r, "", time.Time{}, -1))
	return err
}

// Destroy clears the cookie, wipes the session values and deletes the
// record. The cookie is cleared even if the delete fails.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	http.SetCookie(w, m.newCookie(r, "", time.Time{}, -1))
	defer s.Clear()

	s.mu.Lock()
	id, isNew := s.ID, s.isNew
	s.mu.Unlock()
	if isNew {
		return nil
	}

	err := m.store.Delete(r.Context(), id)
	if err != nil && !errors.Is(err, ErrRecordMissing) {
		return err
	}
	return nil
}

func (m *Manager) newCookie(r *http.Request, value string, expires time.Time, maxAge int) *http.Cookie {
	secure := r.TLS != nil
	if m.secure != nil {
		secure = *m.secure
	}
	return &http.Cookie{
		Name:     m.cookie,
		Value:    value,
		Path:     m.cookiePath,
		Domain:   m.cookieDomain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: m.httpOnly,
		Secure:   secure,
		SameSite: m.sameSite,
	}
}
