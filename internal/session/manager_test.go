package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/labtrack/internal/api"
	"github.com/yourorg/labtrack/internal/domain"
)

type fakeAuthAPI struct {
	mu sync.Mutex

	user        *domain.User
	meOK        bool
	refreshOK   bool
	loginOK     bool
	loginMsg    string
	logoutErr   error
	token       string
	refreshGate chan struct{} // when non-nil, RefreshSession blocks until closed

	meCalls      int
	refreshCalls int
	logoutCalls  int
}

func newFakeAuthAPI() *fakeAuthAPI {
	return &fakeAuthAPI{user: &domain.User{ID: "u-1", Name: "Alice", Email: "alice@example.com"}}
}

func (f *fakeAuthAPI) Me(ctx context.Context) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	if !f.meOK {
		return nil, &api.Error{Status: http.StatusUnauthorized, Message: "no session"}
	}
	return f.user, nil
}

func (f *fakeAuthAPI) RefreshSession(ctx context.Context) (*domain.User, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.refreshOK {
		return nil, &api.Error{Status: http.StatusUnauthorized, Message: "refresh token expired"}
	}
	f.meOK = true
	return f.user, nil
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loginOK {
		return nil, &api.Error{Status: http.StatusUnauthorized, Message: f.loginMsg}
	}
	f.meOK = true
	return f.user, nil
}

func (f *fakeAuthAPI) Signup(ctx context.Context, req api.SignupRequest) (*domain.User, error) {
	return f.user, nil
}

func (f *fakeAuthAPI) AcceptInvite(ctx context.Context, token, name, password string) (*domain.User, error) {
	return f.user, nil
}

func (f *fakeAuthAPI) NotifyLogout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAuthAPI) SessionToken() string { return f.token }

func TestCheckAuthSuccess(t *testing.T) {
	backend := newFakeAuthAPI()
	backend.meOK = true
	m := NewManager(backend, 0, nil)

	m.CheckAuth(context.Background())

	state := m.Snapshot()
	if !state.IsAuthenticated || state.User == nil || state.User.ID != "u-1" {
		t.Fatalf("expected authenticated session, got %+v", state)
	}
	if state.IsLoading {
		t.Fatalf("expected loading flag cleared")
	}
}

func TestCheckAuthRecoversVia401Refresh(t *testing.T) {
	backend := newFakeAuthAPI()
	backend.refreshOK = true
	m := NewManager(backend, 0, nil)

	m.CheckAuth(context.Background())

	if !m.Authenticated() {
		t.Fatalf("expected session recovered through silent refresh")
	}
	if backend.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", backend.refreshCalls)
	}
}

func TestCheckAuthRefreshFailureForcesLogout(t *testing.T) {
	backend := newFakeAuthAPI()
	m := NewManager(backend, 0, nil)

	var transitions []bool
	m.OnAuthChange(func(authed bool) { transitions = append(transitions, authed) })

	m.CheckAuth(context.Background())

	state := m.Snapshot()
	if state.IsAuthenticated || state.User != nil {
		t.Fatalf("expected logged-out state, got %+v", state)
	}
	if state.IsLoading {
		t.Fatalf("expected loading flag cleared on failure path")
	}
	// Never authenticated, so no transition should have fired.
	if len(transitions) != 0 {
		t.Fatalf("expected no auth transitions, got %v", transitions)
	}
}

func TestLoginFailureReturnsResultNotError(t *testing.T) {
	backend := newFakeAuthAPI()
	backend.loginMsg = "invalid credentials"
	m := NewManager(backend, 0, nil)

	res := m.Login(context.Background(), "alice@example.com", "wrong")
	if res.Success {
		t.Fatalf("expected rejected login")
	}
	if res.Message != "invalid credentials" {
		t.Fatalf("expected backend message to surface, got %q", res.Message)
	}
	if m.Authenticated() {
		t.Fatalf("expected session to stay anonymous")
	}
}

func TestLoginMissingFieldsValidatedLocally(t *testing.T) {
	backend := newFakeAuthAPI()
	m := NewManager(backend, 0, nil)

	res := m.Login(context.Background(), "", "")
	if res.Success || res.Message == "" {
		t.Fatalf("expected local validation failure, got %+v", res)
	}
	if backend.meCalls != 0 && backend.refreshCalls != 0 {
		t.Fatalf("expected no network calls for local validation")
	}
}

func TestLogoutClearsStateDespiteNetworkFailure(t *testing.T) {
	backend := newFakeAuthAPI()
	backend.loginOK = true
	backend.logoutErr = &api.Error{Status: http.StatusInternalServerError, Message: "boom"}
	m := NewManager(backend, 0, nil)

	if res := m.Login(context.Background(), "alice@example.com", "pw"); !res.Success {
		t.Fatalf("login failed: %s", res.Message)
	}

	var transitions []bool
	m.OnAuthChange(func(authed bool) { transitions = append(transitions, authed) })

	m.Logout(context.Background())

	if m.Authenticated() {
		t.Fatalf("expected cleared session even when logout notify fails")
	}
	if backend.logoutCalls != 1 {
		t.Fatalf("expected one logout notification, got %d", backend.logoutCalls)
	}
	if len(transitions) != 1 || transitions[0] {
		t.Fatalf("expected one false transition, got %v", transitions)
	}
}

func TestRefreshSilentlyCoalescesConcurrentCallers(t *testing.T) {
	backend := newFakeAuthAPI()
	backend.refreshOK = true
	backend.refreshGate = make(chan struct{})
	m := NewManager(backend, 0, nil)

	const callers = 8
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() { results <- m.RefreshSilently(context.Background()) }()
	}

	// Let every caller reach the singleflight before the flight resolves.
	deadline := time.After(2 * time.Second)
	for {
		backend.mu.Lock()
		started := backend.refreshCalls > 0
		backend.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("refresh never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(backend.refreshGate)

	for i := 0; i < callers; i++ {
		if ok := <-results; !ok {
			t.Fatalf("expected every coalesced caller to share the success")
		}
	}
	if backend.refreshCalls != 1 {
		t.Fatalf("expected one refresh flight, got %d", backend.refreshCalls)
	}
}

func TestAuthChangeFiresOncePerTransition(t *testing.T) {
	backend := newFakeAuthAPI()
	backend.refreshOK = true
	m := NewManager(backend, 0, nil)

	var transitions []bool
	m.OnAuthChange(func(authed bool) { transitions = append(transitions, authed) })

	if !m.RefreshSilently(context.Background()) {
		t.Fatalf("refresh failed")
	}
	// Already authenticated: no second true transition.
	if !m.RefreshSilently(context.Background()) {
		t.Fatalf("second refresh failed")
	}
	m.ForceLogout()

	want := []bool{true, false}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, transitions)
		}
	}
}
