package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/labtrack/internal/observability/metrics"
	"github.com/yourorg/labtrack/internal/reliability/circuitbreaker"
)

// AuthHooks are the session callbacks wired into the 401 interceptor.
// Refresh must be coalesced by the caller (the session manager wraps it in a
// singleflight), so any number of concurrent 401s results in one refresh.
type AuthHooks struct {
	// Refresh performs one silent token refresh and reports success.
	Refresh func(ctx context.Context) bool
	// Authenticated reports whether the session currently believes it is
	// logged in. 401s on an anonymous session are not intercepted.
	Authenticated func() bool
	// ForcedLogout tears the session down after an unrecoverable 401.
	ForcedLogout func()
}

// refreshRetryTransport intercepts 401 responses from the backend: it runs
// one silent refresh and replays the original request exactly once. The auth
// endpoints themselves are exempt so a failing refresh cannot recurse.
type refreshRetryTransport struct {
	next   http.RoundTripper
	jar    http.CookieJar
	logger *slog.Logger

	mu    sync.RWMutex
	hooks AuthHooks
}

func newRefreshRetryTransport(next http.RoundTripper, jar http.CookieJar, logger *slog.Logger) *refreshRetryTransport {
	return &refreshRetryTransport{next: next, jar: jar, logger: logger}
}

func (t *refreshRetryTransport) setHooks(hooks AuthHooks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = hooks
}

func (t *refreshRetryTransport) getHooks() AuthHooks {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hooks
}

// authExempt paths never trigger the refresh-retry cycle
func authExempt(path string) bool {
	switch {
	case strings.HasSuffix(path, "/auth/refresh"),
		strings.HasSuffix(path, "/auth/login"),
		strings.HasSuffix(path, "/auth/signup"),
		strings.HasSuffix(path, "/auth/invite/accept"),
		strings.HasSuffix(path, "/auth/logout"):
		return true
	}
	return false
}

func (t *refreshRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if authExempt(req.URL.Path) {
		return resp, nil
	}

	hooks := t.getHooks()
	if hooks.Refresh == nil || hooks.Authenticated == nil || !hooks.Authenticated() {
		return resp, nil
	}

	t.logger.Debug("401 intercepted, attempting silent refresh",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !hooks.Refresh(req.Context()) {
		metrics.ObserveRefresh("interceptor", "failure")
		metrics.ObserveForcedLogout()
		if hooks.ForcedLogout != nil {
			hooks.ForcedLogout()
		}
		return resp, nil
	}
	metrics.ObserveRefresh("interceptor", "success")

	replay, ok := replayableRequest(req)
	if !ok {
		// A streamed body cannot be replayed; the caller sees the 401.
		return resp, nil
	}

	// The replay is issued below http.Client, so the jar's rotated session
	// cookie has to be attached by hand; the clone still carries the stale one.
	replay.Header.Del("Cookie")
	if t.jar != nil {
		for _, ck := range t.jar.Cookies(replay.URL) {
			replay.AddCookie(ck)
		}
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	metrics.ObserveRetryAfterRefresh()
	return t.next.RoundTrip(replay)
}

// replayableRequest clones req with a fresh body for the single retry
func replayableRequest(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil {
		return clone, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}

// metricsTransport records prometheus metrics for every outgoing request
type metricsTransport struct {
	next     http.RoundTripper
	basePath string
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	path := strings.TrimPrefix(req.URL.Path, t.basePath)
	metrics.ObserveAPIRequest(req.Method, routeLabel(path), status, time.Since(start))
	return resp, err
}

// routeLabel collapses resource IDs so the metric label set stays bounded
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] != "auth" {
		parts[1] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

// breakerTransport fast-fails requests while the backend breaker is open.
// Any response at all counts as success: a 4xx still proves the backend is
// up. Transport errors and 5xx count as failures.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *circuitbreaker.Breaker
}

func newBreakerTransport(next http.RoundTripper, breaker *circuitbreaker.Breaker) *breakerTransport {
	breaker.OnStateChange(func(_, to circuitbreaker.State) {
		metrics.SetBreakerState(int(to))
	})
	return &breakerTransport{next: next, breaker: breaker}
}

// ErrBackendUnavailable is returned without touching the network while the
// breaker is open
var ErrBackendUnavailable = fmt.Errorf("backend unavailable (circuit open)")

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.breaker.Allow() {
		return nil, ErrBackendUnavailable
	}
	resp, err := t.next.RoundTrip(req)
	switch {
	case err != nil:
		t.breaker.RecordFailure()
	case resp.StatusCode >= 500:
		t.breaker.RecordFailure()
	default:
		t.breaker.RecordSuccess()
	}
	return resp, err
}
