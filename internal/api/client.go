// Package api implements the cached client for the remote sneaker catalog
// provider.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/apicon/sneakerdb/internal/metrics"
)

// ErrTransport marks a failed remote call with no cache entry to fall back on.
var ErrTransport = errors.New("transport error")

// Config controls client behavior.
type Config struct {
	Host           string
	Key            string
	CacheDir       string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Client calls the provider, memoizing every response as an on-disk JSON
// document keyed by endpoint plus sorted query parameters. Cache entries are
// append-only: once written they are trusted unconditionally.
type Client struct {
	baseURL    string
	cacheDir   string
	httpClient *http.Client
	logger     *zap.Logger

	brandsOnce  sync.Once
	brands      []string
	brandsErr   error
	gendersOnce sync.Once
	genders     []string
	gendersErr  error
}

// Page is one bounded batch of catalog results.
type Page struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

type vocabularyResponse struct {
	Results []string `json:"results"`
}

// New constructs a Client and ensures the cache directory exists.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("api host is required")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := rate.Limit(cfg.RateLimitRPS)
	if cfg.RateLimitRPS <= 0 {
		rps = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:  "https://" + cfg.Host,
		cacheDir: cfg.CacheDir,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &authTransport{
				base:    newHTTPTransport(),
				host:    cfg.Host,
				key:     cfg.Key,
				limiter: rate.NewLimiter(rps, burst),
			},
		},
		logger: logger,
	}, nil
}

// CachePath returns the cache file for a unique combination of endpoint and
// query parameters. Parameters are sorted by key so that equal parameter sets
// map to the same file regardless of insertion order.
func (c *Client) CachePath(endpoint string, params map[string]string) string {
	name := endpoint
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name += "_" + k + "_" + params[k]
	}
	return filepath.Join(c.cacheDir, name+".json")
}

// Call fetches one endpoint, serving from the cache when a document already
// exists at the computed key. Remote responses are persisted before being
// returned; existing entries are never overwritten or expired.
func (c *Client) Call(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	cachePath := c.CachePath(endpoint, params)
	if data, err := os.ReadFile(cachePath); err == nil {
		c.logger.Info("cache hit", zap.String("file", filepath.Base(cachePath)))
		metrics.ObserveAPICall(endpoint, metrics.SourceCache)
		return data, nil
	}

	body, err := c.fetch(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAPICall(endpoint, metrics.SourceRemote)

	formatted, err := formatJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if err := os.WriteFile(cachePath, formatted, 0o600); err != nil {
		return nil, fmt.Errorf("write cache entry: %w", err)
	}
	return formatted, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("build %s url: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrTransport, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrTransport, endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s body: %v", ErrTransport, endpoint, err)
	}
	return body, nil
}

// Brands returns the brand reference vocabulary, sorted. It is loaded on
// first use and reused for the remainder of the run.
func (c *Client) Brands(ctx context.Context) ([]string, error) {
	c.brandsOnce.Do(func() {
		c.brands, c.brandsErr = c.vocabulary(ctx, "brands")
	})
	return c.brands, c.brandsErr
}

// Genders returns the gender reference vocabulary, sorted. It is loaded on
// first use and reused for the remainder of the run.
func (c *Client) Genders(ctx context.Context) ([]string, error) {
	c.gendersOnce.Do(func() {
		c.genders, c.gendersErr = c.vocabulary(ctx, "genders")
	})
	return c.genders, c.gendersErr
}

func (c *Client) vocabulary(ctx context.Context, endpoint string) ([]string, error) {
	data, err := c.Call(ctx, endpoint, map[string]string{})
	if err != nil {
		return nil, err
	}
	var resp vocabularyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	sort.Strings(resp.Results)
	return resp.Results, nil
}

// Sneakers fetches one page of catalog records.
func (c *Client) Sneakers(ctx context.Context, limit, page int) (Page, error) {
	data, err := c.Call(ctx, "sneakers", map[string]string{
		"limit": strconv.Itoa(limit),
		"page":  strconv.Itoa(page),
	})
	if err != nil {
		return Page{}, err
	}
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return Page{}, fmt.Errorf("decode sneakers page: %w", err)
	}
	return p, nil
}

// formatJSON re-renders a JSON document with sorted keys and indentation so
// cache entries stay diffable. json.Number keeps numeric literals intact.
func formatJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "    ")
}

// authTransport injects provider credentials and holds every outgoing call
// to the provider's rate limit. Both pagination modes share the one bucket.
type authTransport struct {
	base    http.RoundTripper
	host    string
	key     string
	limiter *rate.Limiter
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req.Header.Set("x-rapidapi-host", t.host)
	req.Header.Set("x-rapidapi-key", t.key)
	return t.base.RoundTrip(req)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}
