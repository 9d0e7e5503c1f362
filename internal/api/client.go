package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/labtrack/internal/domain"
	"github.com/yourorg/labtrack/internal/reliability/circuitbreaker"
	"github.com/yourorg/labtrack/internal/reliability/retry"
	"github.com/yourorg/labtrack/pkg/cache"
)

const partnerCacheTTL = 5 * time.Minute

// Options configures a Client
type Options struct {
	BaseURL                 string
	Timeout                 time.Duration
	Logger                  *slog.Logger
	RetryConfig             *retry.Config
	BreakerFailureThreshold int
}

// Client talks to the contract-management backend. It is constructed once at
// startup and passed to every consumer; all interception (tracing, metrics,
// circuit breaking, 401 refresh-retry) lives on its transport chain instead
// of any process-global hook.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	logger   *slog.Logger
	retryCfg *retry.Config
	refresh  *refreshRetryTransport
	partners *cache.Cache[domain.BusinessPartner]

	BPartners  ResourceService[domain.BusinessPartner]
	Projects   ResourceService[domain.Project]
	Samples    ResourceService[domain.Sample]
	TestCodes  ResourceService[domain.TestCode]
	Receivings ResourceService[domain.Receiving]
	Shippings  ResourceService[domain.Shipping]
	Instances  ResourceService[domain.Instance]
	Warehouses ResourceService[domain.Warehouse]
	Roles      ResourceService[domain.Role]
	Grants     ResourceService[domain.RolePermission]
	Users      ResourceService[domain.User]
	Companies  ResourceService[domain.Company]
}

// NewClient builds a client with a cookie jar (the session rides on an
// HTTP-only cookie) and the full transport chain.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := opts.BreakerFailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	breaker := circuitbreaker.New(threshold, 2, 30*time.Second)

	var rt http.RoundTripper = http.DefaultTransport
	rt = otelhttp.NewTransport(rt)
	rt = newBreakerTransport(rt, breaker)
	refreshRT := newRefreshRetryTransport(rt, jar, logger)
	rt = &metricsTransport{next: refreshRT, basePath: base.Path}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:  base,
		logger:   logger,
		retryCfg: opts.RetryConfig,
		refresh:  refreshRT,
		partners: cache.New[domain.BusinessPartner](),
		http: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: rt,
		},
	}

	c.BPartners = ResourceService[domain.BusinessPartner]{c: c, path: "/bpartners", name: "bpartner"}
	c.Projects = ResourceService[domain.Project]{c: c, path: "/projects", name: "project"}
	c.Samples = ResourceService[domain.Sample]{c: c, path: "/samples", name: "sample"}
	c.TestCodes = ResourceService[domain.TestCode]{c: c, path: "/testcodes", name: "testcode"}
	c.Receivings = ResourceService[domain.Receiving]{c: c, path: "/receivings", name: "receiving"}
	c.Shippings = ResourceService[domain.Shipping]{c: c, path: "/shipping", name: "shipping"}
	c.Instances = ResourceService[domain.Instance]{c: c, path: "/instances", name: "instance"}
	c.Warehouses = ResourceService[domain.Warehouse]{c: c, path: "/warehouses", name: "warehouse"}
	c.Roles = ResourceService[domain.Role]{c: c, path: "/roles", name: "role"}
	c.Grants = ResourceService[domain.RolePermission]{c: c, path: "/permissions", name: "permission"}
	c.Users = ResourceService[domain.User]{c: c, path: "/users", name: "user"}
	c.Companies = ResourceService[domain.Company]{c: c, path: "/companies", name: "company"}

	return c, nil
}

// SetAuthHooks installs the session callbacks the 401 interceptor needs.
// Called once at startup, after the session manager is constructed.
func (c *Client) SetAuthHooks(hooks AuthHooks) {
	c.refresh.setHooks(hooks)
}

// do issues one request and decodes a 2xx JSON body into out (when non-nil).
// Non-2xx responses come back as *Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// getJSON is the retried read path. Mutations never go through here, and
// 4xx answers are final: the 401 interceptor has already had its turn by the
// time an error reaches the retry loop.
func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values, op string) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		var out T
		err := c.do(ctx, http.MethodGet, path, query, nil, &out)
		return out, err
	}
	if c.retryCfg == nil {
		return fetch(ctx)
	}
	return retry.Do(ctx, c.retryCfg, c.logger, op, func(ctx context.Context) (T, error) {
		out, err := fetch(ctx)
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return out, retry.Permanent(err)
		}
		return out, err
	})
}

// GetBusinessPartner resolves one partner, memoized briefly: the reconciler
// looks the partner up on every run to build instance-code prefixes.
func (c *Client) GetBusinessPartner(ctx context.Context, id string) (*domain.BusinessPartner, error) {
	key := "bpartner:" + id
	if bp, ok := c.partners.Get(key); ok {
		return &bp, nil
	}
	bp, err := c.BPartners.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.partners.Set(key, *bp, partnerCacheTTL)
	return bp, nil
}

// ListInstances satisfies domain.InstanceAPI
func (c *Client) ListInstances(ctx context.Context) ([]domain.Instance, error) {
	return c.Instances.List(ctx, ListOptions{})
}

// CreateInstance satisfies domain.InstanceAPI
func (c *Client) CreateInstance(ctx context.Context, inst domain.Instance) (*domain.Instance, error) {
	return c.Instances.Create(ctx, inst)
}

// DeleteInstance satisfies domain.InstanceAPI
func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	return c.Instances.Delete(ctx, id)
}

// SessionToken returns the raw access-token cookie value, or "" when the
// jar holds none. The session keepalive peeks at its exp claim to schedule
// refreshes; nothing client-side trusts its contents.
func (c *Client) SessionToken() string {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == "access_token" {
			return ck.Value
		}
	}
	return ""
}

// persistedSession is the on-disk shape of the session cookies
type persistedSession struct {
	SavedAt time.Time      `json:"savedAt"`
	Cookies []*http.Cookie `json:"cookies"`
}

// SaveSession writes the jar's cookies for the backend origin to path so a
// short-lived CLI invocation can resume the session.
func (c *Client) SaveSession(path string) error {
	state := persistedSession{SavedAt: time.Now(), Cookies: c.http.Jar.Cookies(c.baseURL)}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// LoadSession restores previously saved cookies. A missing file is not an
// error; the caller is simply logged out.
func (c *Client) LoadSession(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session: %w", err)
	}
	var state persistedSession
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	c.http.Jar.SetCookies(c.baseURL, state.Cookies)
	return nil
}

// ClearSession removes the persisted session file
func (c *Client) ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
