package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "issuesim/1.0 (issue similarity indexer)"

// Client pages through a repository's issues and resolves comment threads.
type Client struct {
	cfg    Config
	client *http.Client
	window *resilience.Window
	pace   *rate.Limiter
	logger *slog.Logger
	stats  FetchStats
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithSleep replaces the cooldown sleep.
func WithSleep(sleep resilience.SleepFunc) Option {
	return func(c *Client) { c.window = resilience.NewWindow(c.cfg.Window, sleep) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		window: resilience.NewWindow(cfg.Window, nil),
		logger: slog.Default(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.pace = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PageCount returns ceil(total/perPage).
func PageCount(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// FetchIssues requests pages 0..ceil(TotalIssues/PerPage)-1 with state=all.
// Every call starts a fresh quota window. Once the window quota is reached the collected batch is flushed and the
// client sleeps for the cooldown; no cooldown is served after the last page.
// Any failed page aborts the fetch.
func (c *Client) FetchIssues(ctx context.Context) ([]Issue, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := domain.Positive("per_page", c.cfg.PerPage); err != nil {
		return nil, err
	}
	if err := domain.Positive("total_issues", c.cfg.TotalIssues); err != nil {
		return nil, err
	}

	pages := PageCount(c.cfg.TotalIssues, c.cfg.PerPage)
	var all, batch []Issue
	c.stats = FetchStats{}
	c.window.Reset()

	for page := 0; page < pages; page++ {
		issues, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("tracker: fetch %s page %d: %w", c.cfg.Repository.Slug(), page, err)
		}
		c.stats.Pages++
		batch = append(batch, issues...)

		if !c.window.Record() {
			continue
		}
		all = append(all, batch...)
		batch = nil
		if page == pages-1 {
			c.window.Reset()
			break
		}
		c.logger.Warn("rate limit reached, cooling down",
			"repo", c.cfg.Repository.Slug(),
			"pages", page+1,
			"cooldown", c.window.Opts().Cooldown,
		)
		c.window.Cooldown()
		c.stats.Cooldowns++
	}
	all = append(all, batch...)
	c.stats.Issues = len(all)
	return all, nil
}

// Stats returns counters from the most recent FetchIssues call.
func (c *Client) Stats() FetchStats { return c.stats }

// Resolve returns the comment bodies of one issue in tracker order. Only the
// first page of comments is requested.
func (c *Client) Resolve(ctx context.Context, number int) ([]string, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/issues/%d/comments", c.repoURL(), number)

	body, err := c.httpGet(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("tracker: comments for #%d: %w", number, err)
	}
	defer body.Close()

	var payload []commentPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("tracker: decode comments for #%d: %w", number, err)
	}
	out := make([]string, len(payload))
	for i, p := range payload {
		out[i] = p.Body
	}
	return out, nil
}

func (c *Client) validate() error {
	return domain.ValidateRepository(c.cfg.Repository)
}

func (c *Client) repoURL() string {
	r := c.cfg.Repository
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(r.BaseURL, "/"), url.PathEscape(r.Owner), url.PathEscape(r.Repo))
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]Issue, error) {
	u := fmt.Sprintf("%s/issues?page=%d&per_page=%d&state=all", c.repoURL(), page, c.cfg.PerPage)

	body, err := c.httpGet(ctx, u)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var issues []Issue
	if err := json.NewDecoder(body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return issues, nil
}

func (c *Client) httpGet(ctx context.Context, u string) (io.ReadCloser, error) {
	if c.pace != nil {
		if err := c.pace.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}
	return resp.Body, nil
}
