package adsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/georgeshao/clinic-crm/internal/cache"
	"github.com/georgeshao/clinic-crm/internal/ratelimit"
)

const (
	DefaultBaseURL     = "https://graph.facebook.com/v19.0"
	DefaultTimeout     = 30 * time.Second
	DefaultCountryCode = "BR"

	// adSetTTL is the cache class for ad set listings; targeting rarely changes.
	adSetTTL = 10 * time.Minute
)

type Config struct {
	BaseURL     string
	AccessToken string
	AccountID   string
	Timeout     time.Duration
	CountryCode string
	MaxWorkers  int
	// CacheTTL applies to campaign and insight responses. Ad set listings
	// are cached for adSetTTL regardless.
	CacheTTL time.Duration
	Limiter  ratelimit.Config
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Timeout:     DefaultTimeout,
		CountryCode: DefaultCountryCode,
		MaxWorkers:  4,
		CacheTTL:    cache.DefaultTTL,
		Limiter:     ratelimit.DefaultConfig(),
	}
}

// Client mediates every call to the ads API. Responses are cached per
// endpoint and parameters, and cache misses go through the limiter.
type Client struct {
	config  Config
	http    *http.Client
	cache   cache.Store
	limiter *ratelimit.Limiter
	flight  singleflight.Group
	now     func() time.Time
}

// New never fails on missing credentials; the client is built disabled and
// every query returns ErrNotConfigured.
func New(config Config, store cache.Store) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CountryCode == "" {
		config.CountryCode = defaults.CountryCode
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.AccountID != "" && !strings.HasPrefix(config.AccountID, "act_") {
		config.AccountID = "act_" + config.AccountID
	}
	if store == nil {
		store = cache.NewMemory()
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		cache:   store,
		limiter: ratelimit.New(config.Limiter),
		now:     time.Now,
	}
}

func (c *Client) Configured() bool {
	return c.config.AccessToken != "" && c.config.AccountID != ""
}

func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// FetchResource returns the raw JSON body of GET {base}/{endpoint}?params.
func (c *Client) FetchResource(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.fetch(ctx, endpoint, params, c.config.CacheTTL)
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values, ttl time.Duration) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	key := cacheKey(endpoint, params)
	if body, ok := c.cache.Get(ctx, key); ok {
		return body, nil
	}

	// Concurrent misses on the same key share one remote call. The call runs
	// detached from any single caller so one caller's deadline cannot fail
	// the others; each caller still stops waiting on its own ctx.
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
		defer cancel()

		if body, ok := c.cache.Get(fctx, key); ok {
			return body, nil
		}
		if err := c.limiter.Acquire(fctx); err != nil {
			return nil, err
		}
		body, err := c.get(fctx, endpoint, params)
		if err != nil {
			var te *ThrottledError
			if errors.As(err, &te) {
				c.reportThrottled(te)
			}
			return nil, err
		}
		c.cache.Set(fctx, key, body, ttl)
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// reportThrottled escalates the limiter and fills in when the next call
// may go out.
func (c *Client) reportThrottled(te *ThrottledError) {
	if !c.limiter.Throttled() {
		c.limiter.ReportThrottled()
		log.Printf("[ads] Throttled on %s, min delay now %s", te.Endpoint, c.limiter.MinDelay())
	}
	next := c.limiter.LastRequestAt().Add(c.limiter.MinDelay())
	te.RetryAfter = time.Until(next)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := c.config.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			if throttleCodes[envelope.Error.Code] {
				return nil, &ThrottledError{Endpoint: endpoint, API: *envelope.Error}
			}
			return nil, &RemoteError{Endpoint: endpoint, StatusCode: resp.StatusCode, API: envelope.Error}
		}
		return nil, &RemoteError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	return body, nil
}

// cacheKey is deterministic: url.Values.Encode sorts by key.
func cacheKey(endpoint string, params url.Values) string {
	return strings.TrimLeft(endpoint, "/") + "?" + params.Encode()
}

// listResponse is the ads API collection envelope.
type listResponse[T any] struct {
	Data []T `json:"data"`
}

func fetchList[T any](ctx context.Context, c *Client, endpoint string, params url.Values, ttl time.Duration) ([]T, error) {
	body, err := c.fetch(ctx, endpoint, params, ttl)
	if err != nil {
		return nil, err
	}
	var resp listResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return resp.Data, nil
}
