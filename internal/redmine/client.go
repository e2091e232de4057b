package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Afrawles/redmine-alarm/internal/logging"
	"github.com/Afrawles/redmine-alarm/internal/metrics"
)

// APIKeyHeader authenticates every tracker request.
const APIKeyHeader = "X-Redmine-API-Key"

// StatusError is returned when the tracker answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.URL, e.Status, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
	debug      bool
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces requests to perSecond; 0 leaves them unpaced.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

// WithDebug logs every request URL and response body.
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

// NewClient creates a client for the tracker at baseURL. There is no
// request timeout: a hung tracker hangs the run.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the tracker root URL, used to link issues.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch issues a GET for path with q and decodes the JSON answer into out.
// Failures are logged before being returned.
func (c *Client) Fetch(ctx context.Context, path string, q *Query, out any) error {
	url := q.URL(c.baseURL, path)
	err := c.do(ctx, http.MethodGet, url, nil, out)
	if err != nil {
		c.log.Error("tracker request failed", zap.String("url", url), zap.Error(err))
	}
	return err
}

// Projects lists the tracker projects (first page only).
func (c *Client) Projects(ctx context.Context) Result[[]Project] {
	var resp ProjectsResponse
	err := c.Fetch(ctx, "projects.json", NewQuery(), &resp)
	return Result[[]Project]{Value: resp.Projects, Err: err}
}

// Issues lists issues matching q (first page only).
func (c *Client) Issues(ctx context.Context, q *Query) Result[[]Issue] {
	var resp IssuesResponse
	err := c.Fetch(ctx, "issues.json", q, &resp)
	if err == nil && resp.TotalCount > len(resp.Issues) {
		c.log.Warn("more issues match than a single page holds, only the first page is processed",
			zap.Int("total", resp.TotalCount),
			zap.Int("page", len(resp.Issues)),
		)
	}
	return Result[[]Issue]{Value: resp.Issues, Err: err}
}

// UpdateIssue writes patch to issue id.
func (c *Client) UpdateIssue(ctx context.Context, id int, patch IssuePatch) error {
	url := joinURL(c.baseURL, fmt.Sprintf("issues/%d.json", id))
	body, err := json.Marshal(issueUpdate{Issue: patch})
	if err != nil {
		return errs.Wrap(err)
	}

	if err := c.do(ctx, http.MethodPut, url, body, nil); err != nil {
		c.log.Error("could not update issue", zap.Int("issue", id), zap.Error(err))
		return errs.New("update issue #%d: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.TrackerRequests.WithLabelValues(method, result).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return errs.Wrap(err)
	}

	if c.debug {
		c.log.Debug("tracker request", zap.String("method", method), zap.String("url", url))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errs.New("failed to create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.New("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			URL:    url,
			Body:   string(bytes.TrimSpace(raw)),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if c.debug {
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			c.log.Debug("tracker response", zap.String("url", url), zap.String("body", pretty.String()))
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errs.New("failed to decode response: %w", err)
	}
	return nil
}
