package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes      = 10 << 20 // 10 MiB safety cap
	defaultRequestTimeout = 30 * time.Second
	defaultUserAgent      = "blocksync/1.0"
)

// Fetcher retrieves one page of the block feed.
type Fetcher interface {
	FetchPage(ctx context.Context, req Request) (*Page, error)
}

// Client fetches list=blocks pages from a MediaWiki API endpoint.
type Client struct {
	endpoint   *url.URL
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit paces requests to at most rps per second. rps <= 0 disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("feed: parse endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("feed: endpoint %q is not absolute", endpoint)
	}

	c := &Client{
		endpoint:   parsed,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// QueryParams builds the list=blocks query for req.
func QueryParams(req Request) url.Values {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("list", "blocks")
	params.Set("bkdir", "newer")
	params.Set("bklimit", "max")
	params.Set("bkprop", "id|timestamp|expiry|range")
	params.Set("bkstart", req.Start)
	if req.Continue != nil {
		params.Set("bkcontinue", *req.Continue)
	}
	return params
}

func (c *Client) FetchPage(ctx context.Context, req Request) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: wait for rate limiter: %v", ErrTransport, err)
	}

	u := *c.endpoint
	u.RawQuery = QueryParams(req).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: execute request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrTransport, maxResponseBytes)
	}
	c.logger.Debug("Fetched block page", "bytes", len(body), "start", req.Start, "continue", tokenString(req.Continue))

	page, err := DecodePage(body)
	if err != nil {
		if errors.Is(err, ErrAPI) {
			return nil, err
		}
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

func tokenString(token *string) string {
	if token == nil {
		return "<none>"
	}
	return *token
}
