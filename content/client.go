// Package content is the read-only client of the RepoBoard content service.
//
// One call is one outbound GET: no retries, no caching, no timeout beyond the
// transport's own and the caller's context. Staleness is the mount
// controller's concern, not the fetcher's.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MaxBody caps response reads (4 MiB).
const MaxBody int64 = 4 << 20

var (
	// ErrNetwork wraps transport failures (DNS, refused, reset, ctx).
	ErrNetwork = errors.New("content: network error")
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("content: unexpected status")
	// ErrParse wraps undecodable or oversized bodies.
	ErrParse = errors.New("content: parse error")
)

// BaseURLSource resolves the service base URL at call time.
type BaseURLSource interface {
	BaseURL() string
}

// StaticBase is a fixed BaseURLSource.
type StaticBase string

// BaseURL implements BaseURLSource.
func (s StaticBase) BaseURL() string { return string(s) }

// Client talks to the content service.
type Client struct {
	base   BaseURLSource
	http   *http.Client
	ua     string
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.ua = ua }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client resolving its base URL from base.
func New(base BaseURLSource, opts ...Option) *Client {
	c := &Client{
		base:   base,
		http:   http.DefaultClient,
		ua:     "augment/1.0",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the base URL the next call will use.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.base.BaseURL(), "/")
}

// Search queries /search. The result is ordered as the service ranked it
// and may be empty.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []SearchResult
	if err := c.get(ctx, "/search", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Boards lists boards, newest first.
func (c *Client) Boards(ctx context.Context, limit int) ([]Board, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Board
	if err := c.get(ctx, "/boards", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Board fetches one board with its ranked repositories.
func (c *Client) Board(ctx context.Context, id int64) (*BoardWithRepos, error) {
	var out BoardWithRepos
	if err := c.get(ctx, "/boards/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Repo fetches one repository by id.
func (c *Client) Repo(ctx context.Context, id int64) (*SearchResult, error) {
	var out SearchResult
	if err := c.get(ctx, "/repos/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches service-wide counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.get(ctx, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	u := c.BaseURL() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: new request %s: %v", ErrNetwork, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("%w: GET %s: %d", ErrStatus, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBody+1))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrNetwork, path, err)
	}
	if int64(len(body)) > MaxBody {
		return fmt.Errorf("%w: %s body exceeds %d bytes", ErrParse, path, MaxBody)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrParse, path, err)
	}

	c.logger.Debug("content: fetched", "path", path, "status", resp.StatusCode, "size", len(body))
	return nil
}
