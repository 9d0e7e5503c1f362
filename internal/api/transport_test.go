package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// authBackend simulates the cookie-session backend: /instances requires a
// valid sid cookie, /auth/refresh rotates it when allowed.
type authBackend struct {
	mu              sync.Mutex
	allowRefresh    bool
	instanceCalls   int
	instanceCookies []string
	refreshCalls    int
	loginCalls      int
}

func (b *authBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/instances", func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if ck, err := r.Cookie("sid"); err == nil {
			sid = ck.Value
		}
		b.mu.Lock()
		b.instanceCalls++
		b.instanceCookies = append(b.instanceCookies, sid)
		b.mu.Unlock()
		if sid != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		json.NewEncoder(w).Encode([]any{})
	})

	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.refreshCalls++
		allowed := b.allowRefresh
		b.mu.Unlock()
		if !allowed {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "refresh token expired"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "good", Path: "/"})
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"id": "u-1", "email": "alice@example.com"},
		})
	})

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.loginCalls++
		b.mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "invalid credentials"})
	})

	return mux
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Options{BaseURL: baseURL + "/api"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func TestInterceptorRefreshesAndRetriesOnce(t *testing.T) {
	backend := &authBackend{allowRefresh: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	forcedLogout := false
	client.SetAuthHooks(AuthHooks{
		Refresh: func(ctx context.Context) bool {
			_, err := client.RefreshSession(ctx)
			return err == nil
		},
		Authenticated: func() bool { return true },
		ForcedLogout:  func() { forcedLogout = true },
	})

	if _, err := client.ListInstances(context.Background()); err != nil {
		t.Fatalf("expected list to succeed after refresh-retry: %v", err)
	}

	if backend.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", backend.refreshCalls)
	}
	if backend.instanceCalls != 2 {
		t.Fatalf("expected original call plus one retry, got %d", backend.instanceCalls)
	}
	// The replay bypasses http.Client, so the rotated cookie must have been
	// attached explicitly; a bare clone would re-send the stale header.
	if got := backend.instanceCookies[1]; got != "good" {
		t.Fatalf("expected the retry to carry the refreshed session cookie, got %q", got)
	}
	if forcedLogout {
		t.Fatalf("expected no forced logout on successful refresh")
	}
}

func TestInterceptorForcesLogoutWhenRefreshFails(t *testing.T) {
	backend := &authBackend{allowRefresh: false}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	forcedLogout := false
	client.SetAuthHooks(AuthHooks{
		Refresh: func(ctx context.Context) bool {
			_, err := client.RefreshSession(ctx)
			return err == nil
		},
		Authenticated: func() bool { return true },
		ForcedLogout:  func() { forcedLogout = true },
	})

	_, err := client.ListInstances(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected 401 to surface, got %v", err)
	}

	if backend.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh attempt, got %d", backend.refreshCalls)
	}
	if backend.instanceCalls != 1 {
		t.Fatalf("expected no retry after failed refresh, got %d calls", backend.instanceCalls)
	}
	if !forcedLogout {
		t.Fatalf("expected forced logout after failed refresh")
	}
}

func TestInterceptorSkipsAnonymousSession(t *testing.T) {
	backend := &authBackend{allowRefresh: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.SetAuthHooks(AuthHooks{
		Refresh: func(ctx context.Context) bool {
			_, err := client.RefreshSession(ctx)
			return err == nil
		},
		Authenticated: func() bool { return false },
		ForcedLogout:  func() {},
	})

	if _, err := client.ListInstances(context.Background()); !IsUnauthorized(err) {
		t.Fatalf("expected plain 401 for anonymous session, got %v", err)
	}
	if backend.refreshCalls != 0 {
		t.Fatalf("expected no refresh for anonymous session, got %d", backend.refreshCalls)
	}
}

func TestAuthEndpointsAreExemptFromInterception(t *testing.T) {
	backend := &authBackend{allowRefresh: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.SetAuthHooks(AuthHooks{
		Refresh: func(ctx context.Context) bool {
			_, err := client.RefreshSession(ctx)
			return err == nil
		},
		Authenticated: func() bool { return true },
		ForcedLogout:  func() {},
	})

	if _, err := client.Login(context.Background(), "alice@example.com", "wrong"); err == nil {
		t.Fatalf("expected rejected login to surface")
	}
	if backend.loginCalls != 1 {
		t.Fatalf("expected a single login attempt, got %d", backend.loginCalls)
	}
	if backend.refreshCalls != 0 {
		t.Fatalf("expected rejected login not to trigger refresh, got %d", backend.refreshCalls)
	}
}

func TestRouteLabelCollapsesIDs(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/instances/inst-42", "/instances/:id"},
		{"/instances", "/instances"},
		{"/auth/me", "/auth/me"},
		{"/bpartners/7/contacts", "/bpartners/:id/contacts"},
		{"/auth/me/permissions", "/auth/me/permissions"},
	}
	for _, tc := range cases {
		if got := routeLabel(tc.in); got != tc.want {
			t.Fatalf("routeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
