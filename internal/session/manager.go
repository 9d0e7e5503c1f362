// Package session owns the single source of truth for the current identity
// and drives the token lifecycle: initial auth check, credential operations,
// silent refresh, and the background keepalive loop.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/labtrack/internal/api"
	"github.com/yourorg/labtrack/internal/domain"
	"github.com/yourorg/labtrack/internal/observability/metrics"
)

// AuthAPI is the slice of the backend client the manager drives
type AuthAPI interface {
	Me(ctx context.Context) (*domain.User, error)
	RefreshSession(ctx context.Context) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Signup(ctx context.Context, req api.SignupRequest) (*domain.User, error)
	AcceptInvite(ctx context.Context, token, name, password string) (*domain.User, error)
	NotifyLogout(ctx context.Context) error
	SessionToken() string
}

// State is a point-in-time snapshot of the session
type State struct {
	User            *domain.User
	IsAuthenticated bool
	IsLoading       bool
}

// Result is the outcome of a credential operation. Rejected credentials are
// a Result, never an error: the caller renders Message inline.
type Result struct {
	Success bool
	Message string
}

// Manager holds session state behind a lock and coalesces concurrent
// refresh attempts onto a single flight.
type Manager struct {
	api             AuthAPI
	logger          *slog.Logger
	refreshInterval time.Duration

	mu            sync.RWMutex
	user          *domain.User
	authenticated bool
	loading       bool
	onAuthChange  []func(authenticated bool)

	refreshGroup singleflight.Group

	keepaliveMu     sync.Mutex
	keepaliveCancel context.CancelFunc
}

// NewManager creates a session manager. refreshInterval is the keepalive
// cadence; zero means the 10-minute default.
func NewManager(authAPI AuthAPI, refreshInterval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if refreshInterval <= 0 {
		refreshInterval = 10 * time.Minute
	}
	return &Manager{
		api:             authAPI,
		logger:          logger,
		refreshInterval: refreshInterval,
	}
}

// Snapshot returns the current session state
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{User: m.user, IsAuthenticated: m.authenticated, IsLoading: m.loading}
}

// Authenticated reports whether the session currently believes it is logged
// in. Wired into the 401 interceptor.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// OnAuthChange registers a callback invoked on every authenticated-flag
// transition. The permission cache reloads through this hook.
func (m *Manager) OnAuthChange(fn func(authenticated bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAuthChange = append(m.onAuthChange, fn)
}

// CheckAuth resolves the session from the stored cookie. On a 401 it
// attempts one silent refresh before giving up; on any other failure it
// clears the identity without cascading into a logout. The loading flag is
// cleared on every exit path.
func (m *Manager) CheckAuth(ctx context.Context) {
	m.setLoading(true)
	defer m.setLoading(false)

	user, err := m.api.Me(ctx)
	if err == nil {
		m.setUser(user)
		return
	}

	if api.IsUnauthorized(err) {
		if m.RefreshSilently(ctx) {
			metrics.ObserveRefresh("checkauth", "success")
			if user, err := m.api.Me(ctx); err == nil {
				m.setUser(user)
				return
			}
		} else {
			metrics.ObserveRefresh("checkauth", "failure")
		}
		m.ForceLogout()
		return
	}

	// Network or server trouble: stay logged out locally but do not force a
	// redirect loop by tearing anything down.
	m.logger.Warn("auth check failed", slog.String("error", err.Error()))
	m.clearIdentity()
}

// RefreshSilently rotates the session cookie. Concurrent callers join one
// in-flight refresh and share its outcome.
func (m *Manager) RefreshSilently(ctx context.Context) bool {
	ok, _, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		user, err := m.api.RefreshSession(ctx)
		if err != nil {
			m.logger.Debug("silent refresh failed", slog.String("error", err.Error()))
			return false, nil
		}
		m.setUser(user)
		return true, nil
	})
	success, _ := ok.(bool)
	return success
}

// Login authenticates with credentials
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	if email == "" || password == "" {
		return Result{Message: "email and password are required"}
	}
	return m.credentialOp(func() (*domain.User, error) {
		return m.api.Login(ctx, email, password)
	})
}

// Signup registers a new account and signs it in
func (m *Manager) Signup(ctx context.Context, req api.SignupRequest) Result {
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return Result{Message: "name, email and password are required"}
	}
	return m.credentialOp(func() (*domain.User, error) {
		return m.api.Signup(ctx, req)
	})
}

// AcceptInvite completes an invited user's signup and signs it in
func (m *Manager) AcceptInvite(ctx context.Context, token, name, password string) Result {
	if token == "" || name == "" || password == "" {
		return Result{Message: "token, name and password are required"}
	}
	return m.credentialOp(func() (*domain.User, error) {
		return m.api.AcceptInvite(ctx, token, name, password)
	})
}

// Logout notifies the backend (best effort) and unconditionally clears all
// local session state, including the keepalive loop.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.NotifyLogout(ctx); err != nil {
		m.logger.Warn("logout notification failed", slog.String("error", err.Error()))
	}
	m.StopKeepalive()
	m.clearIdentity()
}

// ForceLogout tears the session down locally after an unrecoverable 401.
// Wired into the 401 interceptor.
func (m *Manager) ForceLogout() {
	m.StopKeepalive()
	m.clearIdentity()
}

// StartKeepalive launches the background refresh loop. Refreshing happens on
// the configured interval, or earlier when the access token's exp claim says
// it would otherwise lapse first. Stopped by ctx cancellation or logout.
func (m *Manager) StartKeepalive(ctx context.Context) {
	m.keepaliveMu.Lock()
	defer m.keepaliveMu.Unlock()
	if m.keepaliveCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.keepaliveCancel = cancel

	go m.keepaliveLoop(ctx)
	m.logger.Info("session keepalive started", slog.Duration("interval", m.refreshInterval))
}

// StopKeepalive cancels the background refresh loop if it is running
func (m *Manager) StopKeepalive() {
	m.keepaliveMu.Lock()
	defer m.keepaliveMu.Unlock()
	if m.keepaliveCancel != nil {
		m.keepaliveCancel()
		m.keepaliveCancel = nil
	}
}

func (m *Manager) keepaliveLoop(ctx context.Context) {
	timer := time.NewTimer(m.nextRefreshIn())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session keepalive stopped")
			return
		case <-timer.C:
			if m.Authenticated() {
				if m.RefreshSilently(ctx) {
					metrics.ObserveRefresh("keepalive", "success")
				} else {
					metrics.ObserveRefresh("keepalive", "failure")
					m.ForceLogout()
					return
				}
			}
			timer.Reset(m.nextRefreshIn())
		}
	}
}

// nextRefreshIn returns the configured interval, shortened when the access
// token's exp claim is nearer. The claim is read unverified: it only
// schedules the refresh, the backend still validates everything.
func (m *Manager) nextRefreshIn() time.Duration {
	interval := m.refreshInterval

	token := m.api.SessionToken()
	if token == "" {
		return interval
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return interval
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return interval
	}
	headroom := time.Until(exp.Time) - time.Minute
	if headroom < 30*time.Second {
		headroom = 30 * time.Second
	}
	if headroom < interval {
		return headroom
	}
	return interval
}

func (m *Manager) credentialOp(op func() (*domain.User, error)) Result {
	user, err := op()
	if err != nil {
		if apiErr, ok := asAPIError(err); ok {
			return Result{Message: apiErr.Message}
		}
		m.logger.Error("credential operation failed", slog.String("error", err.Error()))
		return Result{Message: "service unavailable, try again"}
	}
	m.setUser(user)
	return Result{Success: true}
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) setUser(user *domain.User) {
	m.mu.Lock()
	m.user = user
	changed := !m.authenticated
	m.authenticated = true
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	if changed {
		for _, fn := range callbacks {
			fn(true)
		}
	}
}

func (m *Manager) clearIdentity() {
	m.mu.Lock()
	m.user = nil
	changed := m.authenticated
	m.authenticated = false
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	if changed {
		for _, fn := range callbacks {
			fn(false)
		}
	}
}

// callbacksLocked must be called with m.mu held
func (m *Manager) callbacksLocked() []func(bool) {
	out := make([]func(bool), len(m.onAuthChange))
	copy(out, m.onAuthChange)
	return out
}

func asAPIError(err error) (*api.Error, bool) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
