// Package accessclient is the API-side counterpart of the server guard: it
// signs in, fetches the session and access-control endpoints once, and keeps
// the result in a session-scoped cache that route guards read from.
package accessclient

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
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chambers-pm/chambers/internal/access"
)

var (
	// ErrUnauthenticated means the server did not accept the session.
	ErrUnauthenticated = errors.New("accessclient: unauthenticated")
	// ErrForbidden means the server refused the operation for this role.
	ErrForbidden = errors.New("accessclient: forbidden")
	// ErrInvalidCredentials is returned by Login for a rejected email/password.
	ErrInvalidCredentials = errors.New("accessclient: invalid credentials")
	// ErrSuperseded means a login, logout or newer Refresh replaced the cache
	// while this Refresh was in flight; its result was discarded.
	ErrSuperseded = errors.New("accessclient: refresh superseded")
)

const csrfHeader = "X-CSRF-Token"

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("accessclient: %s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// Client talks to the Chambers API.
type Client struct {
	base   *url.URL
	http   *http.Client
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	csrf string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. A cookie jar is attached if missing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for degraded-policy warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("accessclient: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("accessclient: base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 15 * time.Second},
		cache:  &Cache{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Cache exposes the session-scoped snapshot cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Snapshot returns the cached snapshot without contacting the server.
func (c *Client) Snapshot() (Snapshot, bool) {
	return c.cache.Load()
}

// Login signs in and loads a fresh snapshot.
func (c *Client) Login(ctx context.Context, email, password string) (Snapshot, error) {
	c.cache.Invalidate()
	if err := c.fetchCSRF(ctx); err != nil {
		return Snapshot{}, err
	}
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return Snapshot{}, ErrInvalidCredentials
		}
		return Snapshot{}, err
	}
	c.setCSRF(resp.CSRFToken)
	return c.Refresh(ctx)
}

// Logout ends the server session. The cache is dropped even when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.cache.Invalidate()
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.setCSRF("")
	return err
}

// Refresh fetches the session and access-control endpoints concurrently and
// replaces the cached snapshot. A failing policy endpoint degrades to the
// minimal policy instead of failing the session. If the cache changed while
// the requests were in flight the result is dropped and ErrSuperseded returned.
func (c *Client) Refresh(ctx context.Context) (Snapshot, error) {
	epoch := c.cache.Epoch()
	var (
		principal access.Principal
		policy    access.Policy
		degraded  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.do(gctx, http.MethodGet, "/api/session", nil, &principal)
	})
	g.Go(func() error {
		err := c.do(gctx, http.MethodGet, "/api/access-control", nil, &policy)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrUnauthenticated):
			return err
		case gctx.Err() != nil:
			return gctx.Err()
		default:
			c.logger.Warn("access policy unavailable, using minimal policy", slog.Any("error", err))
			policy = access.MinimalPolicy()
			degraded = true
			return nil
		}
	})
	if err := g.Wait(); err != nil {
		c.cache.InvalidateIfCurrent(epoch)
		return Snapshot{}, err
	}
	snap := Snapshot{Principal: principal, Policy: normalizePolicy(policy), Degraded: degraded, FetchedAt: c.now()}
	if !c.cache.StoreIfCurrent(epoch, snap) {
		return Snapshot{}, ErrSuperseded
	}
	return snap, nil
}

// Current returns the cached snapshot, refreshing when the cache is empty.
func (c *Client) Current(ctx context.Context) (Snapshot, error) {
	if snap, ok := c.cache.Load(); ok {
		return snap, nil
	}
	return c.Refresh(ctx)
}

// Get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) fetchCSRF(ctx context.Context) error {
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/csrf", nil, &resp); err != nil {
		return err
	}
	c.setCSRF(resp.CSRFToken)
	return nil
}

func (c *Client) setCSRF(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

func (c *Client) csrfToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		if token := c.csrfToken(); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("accessclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("accessclient: decode %s: %w", path, err)
	}
	return nil
}

func normalizePolicy(p access.Policy) access.Policy {
	if p.Permissions == nil {
		p.Permissions = []string{}
	}
	if !access.CanAccessRoute(p, access.DefaultRoute) {
		p.AccessibleRoutes = append([]string{access.DefaultRoute}, p.AccessibleRoutes...)
		if !access.CanViewSidebarItem(p, access.DefaultSidebarItem) {
			p.AccessibleSidebarItems = append([]string{access.DefaultSidebarItem}, p.AccessibleSidebarItems...)
		}
	}
	return p
}
