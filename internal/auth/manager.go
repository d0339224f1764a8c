// Package auth holds the client's session and drives the
// login/logout/refresh state machine.
//
//	Unauthenticated --Authenticate(ok)--> Authenticated
//	Authenticated   --Logout / 401-----> Unauthenticated
//	Authenticated   --Refresh(ok)------> Authenticated (new token)
//	Authenticated   --Refresh(fail)----> Unauthenticated
//	Authenticated   --expiry-----------> Unauthenticated
package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/telemetry"
	"github.com/birbparty/metabase-go/internal/transport"
	"github.com/birbparty/metabase-go/models"
)

const (
	sessionPath     = "/api/session"
	currentUserPath = "/api/user/current"
)

// Transport is the part of the HTTP transport the manager drives.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, body, out interface{}) error
	Delete(ctx context.Context, path string) error
	SetAuth(header, value string)
	ClearAuth()
	ClearAuthIf(value string) bool
	OnUnauthorized(fn func(token string))
}

// Config configures a Manager.
type Config struct {
	// SessionTTL expires sessions locally after this long. Zero trusts the
	// server to reject stale sessions with 401.
	SessionTTL time.Duration

	// OnChange is told about every transition. It runs without locks held.
	OnChange func(authenticated bool)

	Logger *logrus.Entry

	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Manager owns the session. Writes are serialized; readers see a consistent
// snapshot.
type Manager struct {
	transport Transport
	cfg       Config
	log       *logrus.Entry

	// opMu serializes Authenticate, Logout and Refresh
	opMu sync.Mutex

	mu      sync.RWMutex
	session *models.Session
	creds   models.Credentials
}

// NewManager creates a manager and registers it for 401 notifications on t.
func NewManager(t Transport, cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = telemetry.L()
	}
	m := &Manager{
		transport: t,
		cfg:       cfg,
		log:       log.WithField("component", "auth"),
	}
	t.OnUnauthorized(m.handleUnauthorized)
	return m
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID string `json:"id"`
}

// Authenticate establishes a session with creds, replacing any existing one.
// Email/password credentials log in through the session endpoint; API keys
// and session tokens are validated against the current-user endpoint. On any
// failure the manager ends unauthenticated.
func (m *Manager) Authenticate(ctx context.Context, creds models.Credentials) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	session, err := m.establish(ctx, creds)
	if err != nil {
		m.clear("", "authentication failed")
		m.transport.ClearAuth()
		m.log.WithField("credentials", redacted(creds)).WithError(err).Warn("authentication failed")
		return err
	}

	m.store(session, creds)
	m.log.WithFields(logrus.Fields{
		"credentials": creds.Redacted(),
		"user_id":     session.User.ID,
	}).Info("session established")
	return nil
}

func (m *Manager) establish(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	var header, token string

	switch c := creds.(type) {
	case models.EmailPassword:
		if strings.TrimSpace(c.Email) == "" || c.Password == "" {
			return nil, apierr.New(apierr.KindValidation, "email and password are required")
		}
		var resp loginResponse
		if err := m.transport.Post(ctx, sessionPath, loginRequest{Username: c.Email, Password: c.Password}, &resp); err != nil {
			return nil, authFailure(err, "login rejected")
		}
		if resp.ID == "" {
			return nil, apierr.New(apierr.KindAuthentication, "login response carried no session id")
		}
		header, token = transport.SessionHeader, resp.ID
	case models.APIKey:
		if c.Key == "" {
			return nil, apierr.New(apierr.KindValidation, "API key is empty")
		}
		header, token = transport.APIKeyHeader, c.Key
	case models.SessionToken:
		if c.Token == "" {
			return nil, apierr.New(apierr.KindValidation, "session token is empty")
		}
		header, token = transport.SessionHeader, c.Token
	case nil:
		return nil, apierr.New(apierr.KindValidation, "credentials are required")
	default:
		return nil, apierr.Newf(apierr.KindValidation, "unsupported credentials %T", creds)
	}

	m.transport.SetAuth(header, token)

	user := &models.User{}
	if err := m.transport.Get(ctx, currentUserPath, nil, user); err != nil {
		return nil, authFailure(err, "validate session")
	}

	session := &models.Session{Token: token, User: user}
	if m.cfg.SessionTTL > 0 {
		expires := m.cfg.Now().Add(m.cfg.SessionTTL)
		session.ExpiresAt = &expires
	}
	return session, nil
}

// Logout deletes the server-side session on a best-effort basis and then
// clears local state unconditionally.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	session, creds := m.session, m.creds
	m.mu.RUnlock()
	if session == nil {
		return nil
	}

	// API keys have no server-side session to delete.
	if _, isKey := creds.(models.APIKey); !isKey {
		if err := m.transport.Delete(ctx, sessionPath); err != nil {
			m.log.WithError(err).Debug("session delete failed, clearing locally")
		}
	}

	m.clear("", "logout")
	m.transport.ClearAuth()
	return nil
}

// Refresh renews the session. Email/password credentials log in again;
// token credentials are re-validated. Any failure clears the session.
func (m *Manager) Refresh(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	creds := m.creds
	active := m.session != nil
	m.mu.RUnlock()
	if !active {
		return apierr.New(apierr.KindUnauthenticated, "no session to refresh")
	}

	session, err := m.establish(ctx, creds)
	if err != nil {
		m.clear("", "refresh failed")
		m.transport.ClearAuth()
		return err
	}
	m.store(session, creds)
	m.log.Debug("session refreshed")
	return nil
}

// IsAuthenticated reports whether a live session exists.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.Token != "" && !m.session.Expired(m.cfg.Now())
}

// Require returns an Unauthenticated error without touching the network
// unless a live session exists. An expired session is cleared.
func (m *Manager) Require() error {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	if session == nil || session.Token == "" {
		return apierr.New(apierr.KindUnauthenticated, "not authenticated, call Authenticate first")
	}
	if session.Expired(m.cfg.Now()) {
		m.handleExpiry(session.Token)
		return apierr.New(apierr.KindUnauthenticated, "session expired, call Authenticate again")
	}
	return nil
}

// CurrentUser returns the user of the current session.
func (m *Manager) CurrentUser() (models.User, error) {
	if err := m.Require(); err != nil {
		return models.User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.session.User == nil {
		return models.User{}, apierr.New(apierr.KindUnauthenticated, "not authenticated")
	}
	return *m.session.User, nil
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return models.Session{}, false
	}
	return *m.session, true
}

func (m *Manager) store(session *models.Session, creds models.Credentials) {
	m.mu.Lock()
	m.session = session
	m.creds = creds
	m.mu.Unlock()

	if m.cfg.OnChange != nil {
		m.cfg.OnChange(true)
	}
}

// clear drops the session. A non-empty token restricts the clear to that
// session, so a late 401 for an old session leaves a newer one alone.
func (m *Manager) clear(token, reason string) bool {
	m.mu.Lock()
	if m.session == nil || (token != "" && m.session.Token != token) {
		m.mu.Unlock()
		return false
	}
	m.session = nil
	m.creds = nil
	m.mu.Unlock()

	m.log.WithField("reason", reason).Info("session cleared")
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(false)
	}
	return true
}

func (m *Manager) handleUnauthorized(token string) {
	if m.clear(token, "unauthorized response") {
		m.transport.ClearAuthIf(token)
	}
}

func (m *Manager) handleExpiry(token string) {
	if m.clear(token, "session expired") {
		m.transport.ClearAuthIf(token)
	}
}

// authFailure turns a rejection by the server into an Authentication error.
// Network failures, rate limiting and 5xx keep their kind so callers can retry.
func authFailure(err error, message string) error {
	e := apierr.Wrap(err, apierr.KindAuthentication, message)
	if e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError &&
		e.StatusCode != http.StatusTooManyRequests && e.StatusCode != http.StatusRequestTimeout {
		e.Kind = apierr.KindAuthentication
		e.Retryable = false
	}
	return e
}

func redacted(creds models.Credentials) string {
	if creds == nil {
		return "none"
	}
	return creds.Redacted()
}
