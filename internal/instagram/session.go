// Package instagram talks to Instagram: session establishment, post URL
// parsing and resolution of a post to its direct media URL.
package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/paths"
	"github.com/roelfdiedericks/instasave/internal/store"
)

// Session is an authenticated Instagram web session. Callers treat it as
// opaque and only use Apply.
type Session struct {
	Username  string            `json:"username"`
	UserID    string            `json:"user_id,omitempty"`
	CSRFToken string            `json:"csrf_token"`
	Cookies   map[string]string `json:"cookies"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s *Session) valid() bool {
	return s != nil && s.Username != "" && len(s.Cookies) > 0
}

// Apply attaches the session cookies and CSRF / app headers to req.
func (s *Session) Apply(req *http.Request, appID string) {
	names := make([]string, 0, len(s.Cookies))
	for name := range s.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.AddCookie(&http.Cookie{Name: name, Value: s.Cookies[name]})
	}
	if s.CSRFToken != "" {
		req.Header.Set("X-CSRFToken", s.CSRFToken)
	}
	if appID != "" {
		req.Header.Set("X-IG-App-ID", appID)
	}
}

// Authenticator performs a fresh login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*Session, error)
}

// SessionManager establishes the session once per credential identity and
// persists it so restarts skip the login.
type SessionManager struct {
	username string
	password string
	path     string
	auth     Authenticator

	mu      sync.Mutex // serialises establishment
	current atomic.Pointer[Session]
}

// NewSessionManager stores the session blob at paths.SessionPath(dataDir, username).
func NewSessionManager(dataDir, username, password string, auth Authenticator) *SessionManager {
	return &SessionManager{
		username: username,
		password: password,
		path:     paths.SessionPath(dataDir, username),
		auth:     auth,
	}
}

// Path returns the session blob location.
func (m *SessionManager) Path() string {
	return m.path
}

// Acquire returns the established session, loading the persisted blob or
// logging in on first use. Failures wrap ErrAuth.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	if s := m.current.Load(); s != nil {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have finished while we waited for the lock
	if s := m.current.Load(); s != nil {
		return s, nil
	}

	var persisted Session
	found, err := store.ReadJSON(m.path, &persisted)
	switch {
	case err != nil:
		L_warn("instagram: ignoring unreadable session blob", "path", m.path, "error", err)
	case found && persisted.valid():
		L_info("instagram: session loaded", "username", persisted.Username, "path", m.path)
		m.current.Store(&persisted)
		return &persisted, nil
	case found:
		L_warn("instagram: ignoring incomplete session blob", "path", m.path)
	}

	if m.username == "" || m.password == "" {
		return nil, fmt.Errorf("%w: credentials not configured", ErrAuth)
	}

	L_info("instagram: logging in", "username", m.username)
	s, err := m.auth.Login(ctx, m.username, m.password)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if !s.valid() {
		return nil, fmt.Errorf("%w: login returned an empty session", ErrAuth)
	}

	// The in-memory session is still usable if the blob cannot be written
	if err := store.AtomicWriteJSON(m.path, s, 0600); err != nil {
		L_error("instagram: failed to persist session", "path", m.path, "error", err)
	} else {
		L_info("instagram: session saved", "path", m.path)
	}

	m.current.Store(s)
	return s, nil
}

// Invalidate forgets the cached session and removes the persisted blob so
// the next Acquire logs in again.
func (m *SessionManager) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.Store(nil)
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session blob: %w", err)
	}
	L_info("instagram: session invalidated", "path", m.path)
	return nil
}
