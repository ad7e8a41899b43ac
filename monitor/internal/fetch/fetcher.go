// Package fetch produces page content for the pipeline: raw HTML plus
// extracted text, via plain HTTP or a rendered (headless browser) fetch.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result contains the outcome of one fetch: the raw page markup, the
// extracted readable text, and a content hash of that text.
type Result struct {
	HTML       string
	Text       string
	Title      string
	Hash       string // SHA-256 of extracted text
	StatusCode int
}

// Fetcher is the collaborator contract the pipeline depends on.
type Fetcher interface {
	Fetch(ctx context.Context, url string, renderJS bool) (*Result, error)
}

// Config configures the default Client.
type Config struct {
	Timeout   time.Duration // per-attempt HTTP timeout. Default: 30s.
	MaxBytes  int64         // max response body size. Default: 10MB.
	UserAgent string
	// Retries is the number of additional attempts after a transport
	// failure; RetryDelay separates them. Extraction failures are not
	// retried. Defaults: 0 retries.
	Retries    int
	RetryDelay time.Duration
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "competitor-intel/1.0"
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
}

// Client is the default Fetcher: plain HTTP for http mode, a lazily
// launched headless browser for rendered mode.
type Client struct {
	http    *http.Client
	browser *Browser
	config  Config
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		browser: NewBrowser(),
		config:  cfg,
	}
}

// Fetch retrieves a URL in the requested mode and extracts readable text.
func (c *Client) Fetch(ctx context.Context, url string, renderJS bool) (*Result, error) {
	var html string
	var status int
	var err error

	for attempt := 0; ; attempt++ {
		if renderJS {
			html, err = c.browser.HTML(ctx, url)
			status = http.StatusOK
		} else {
			html, status, err = c.fetchHTTP(ctx, url)
		}
		if err == nil {
			break
		}
		if attempt >= c.config.Retries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.config.RetryDelay):
		}
	}

	ex, err := Extract(html, url)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}

	h := sha256.Sum256([]byte(ex.Text))
	return &Result{
		HTML:       html,
		Text:       ex.Text,
		Title:      ex.Title,
		Hash:       fmt.Sprintf("%x", h),
		StatusCode: status,
	}, nil
}

// Close shuts down the headless browser if one was launched.
func (c *Client) Close() error {
	return c.browser.Close()
}

func (c *Client) fetchHTTP(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return string(body), resp.StatusCode, nil
}
