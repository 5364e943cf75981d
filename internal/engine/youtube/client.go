// Package youtube mediates every call to the YouTube Data API v3: response
// cache with single-flight, per-credential quota ledger, token-bucket rate
// limiting and bounded retries, plus caption download for transcripts.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"golang.org/x/time/rate"
)

// DataAPIBase is the production API root.
const DataAPIBase = "https://www.googleapis.com/youtube/v3"

// maxBatch is the API's id-list limit for videos and channels.
const maxBatch = 50

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Ledger     *engine.QuotaLedger
	Cache      *engine.ResponseCache // nil = no caching
	Limiter    *rate.Limiter         // nil = unlimited
	Retry      engine.RetryConfig
	TTLs       engine.CacheTTLs
	MaxWorkers int
}

// Client is bound to one credential and its ledger.
type Client struct {
	apiKey     string
	base       string
	http       *http.Client
	ledger     *engine.QuotaLedger
	cache      *engine.ResponseCache
	limiter    *rate.Limiter
	retry      engine.RetryConfig
	ttls       engine.CacheTTLs
	maxWorkers int
}

// NewClient builds a Client, filling defaults for unset options.
func NewClient(o Options) *Client {
	c := &Client{
		apiKey:     o.APIKey,
		base:       strings.TrimRight(o.BaseURL, "/"),
		http:       o.HTTPClient,
		ledger:     o.Ledger,
		cache:      o.Cache,
		limiter:    o.Limiter,
		retry:      o.Retry,
		ttls:       o.TTLs,
		maxWorkers: o.MaxWorkers,
	}
	if c.base == "" {
		c.base = DataAPIBase
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.ledger == nil {
		c.ledger = engine.NewQuotaLedger(engine.DefaultQuotaBudget, nil, time.UTC)
	}
	if c.retry.MaxAttempts == 0 {
		c.retry = engine.DefaultRetryConfig
	}
	if c.ttls == (engine.CacheTTLs{}) {
		c.ttls = engine.DefaultCacheTTLs()
	}
	if c.maxWorkers <= 0 {
		c.maxWorkers = 10
	}
	return c
}

// NewLimiter returns a token bucket allowing n requests per window.
func NewLimiter(n int, window time.Duration, burst int) *rate.Limiter {
	if n <= 0 || window <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = n
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(n)), burst)
}

// Ledger returns the quota ledger this client charges.
func (c *Client) Ledger() *engine.QuotaLedger { return c.ledger }

// call runs the full path for one API request: cache → single-flight →
// quota reserve → rate limit → retried HTTP → commit and cache.
func (c *Client) call(ctx context.Context, op engine.Operation, endpoint string, params url.Values, out any) error {
	var data []byte
	var err error
	if c.cache != nil {
		key := engine.Fingerprint(endpoint, params)
		data, _, err = c.cache.Do(ctx, key, c.ttls.For(op), func(ctx context.Context) ([]byte, error) {
			return c.fetch(ctx, op, endpoint, params)
		})
	} else {
		data, err = c.fetch(ctx, op, endpoint, params)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// fetch performs one uncached API call charged to the ledger.
func (c *Client) fetch(ctx context.Context, op engine.Operation, endpoint string, params url.Values) ([]byte, error) {
	res, err := c.ledger.Reserve(op)
	if err != nil {
		slog.Warn("youtube: quota check failed", slog.String("op", string(op)), slog.Any("error", err))
		return nil, err
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("key", c.apiKey)
	reqURL := c.base + "/" + strings.Trim(endpoint, "/") + "?" + q.Encode()

	body, err := engine.RetryDo(ctx, c.retry, func() ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return c.do(ctx, op, reqURL)
	})
	if err != nil {
		res.Release()
		engine.IncrAPIErrors()
		var qe *engine.QuotaExceededError
		if errors.As(err, &qe) && qe.Remote {
			c.ledger.Exhaust()
			qe.Cost = c.ledger.Cost(op)
			qe.ResetAt = c.ledger.Snapshot().ResetAt
		}
		return nil, err
	}
	res.Commit(ctx)
	return body, nil
}

func (c *Client) do(ctx context.Context, op engine.Operation, reqURL string) ([]byte, error) {
	engine.IncrAPICalls()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// url.Error carries the request URL, which holds the key.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, &engine.TransientAPIError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &engine.TransientAPIError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	return nil, classifyError(op, resp.StatusCode, body)
}

var (
	quotaReasons = map[string]bool{
		"quotaExceeded":       true,
		"dailyLimitExceeded":  true,
		"RATE_LIMIT_EXCEEDED": true,
	}
	credentialReasons = map[string]bool{
		"keyInvalid":              true,
		"keyExpired":              true,
		"API_KEY_INVALID":         true,
		"API_KEY_EXPIRED":         true,
		"accessNotConfigured":     true,
		"ipRefererBlocked":        true,
		"API_KEY_SERVICE_BLOCKED": true,
	}
	throttleReasons = map[string]bool{
		"rateLimitExceeded":     true,
		"userRateLimitExceeded": true,
		"backendError":          true,
	}
)

// classifyError maps an API error response onto the engine error taxonomy.
func classifyError(op engine.Operation, status int, body []byte) error {
	var env errorResponse
	_ = json.Unmarshal(body, &env)
	var reasons []string
	for _, e := range env.Error.Errors {
		reasons = append(reasons, e.Reason)
	}
	for _, d := range env.Error.Details {
		reasons = append(reasons, d.Reason)
	}
	has := func(set map[string]bool) string {
		for _, r := range reasons {
			if set[r] {
				return r
			}
		}
		return ""
	}
	msg := env.Error.Message
	if msg == "" {
		msg = engine.TruncateRunes(strings.TrimSpace(string(body)), 200, "")
	}

	switch {
	case status == http.StatusTooManyRequests || has(quotaReasons) != "":
		return &engine.QuotaExceededError{Operation: op, Remote: true}
	case status == http.StatusUnauthorized:
		return &engine.InvalidCredentialError{StatusCode: status, Reason: first(reasons, "unauthorized")}
	case has(credentialReasons) != "":
		return &engine.InvalidCredentialError{StatusCode: status, Reason: has(credentialReasons)}
	case status >= 500 || has(throttleReasons) != "":
		return &engine.TransientAPIError{Operation: op, StatusCode: status, Err: errors.New(msg)}
	}
	return &engine.APIError{Operation: op, StatusCode: status, Reason: first(reasons, ""), Message: msg}
}

func first(ss []string, def string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return def
}
