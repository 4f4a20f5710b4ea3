package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/notionposts/internal/cache"
)

// ErrCacheMiss is returned in CacheOnly mode when no cached response exists.
var ErrCacheMiss = errors.New("cache miss")

// StatusError reports a non-2xx response from the record API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Client wraps http.Client and provides timeouts, limited retry on transient
// errors and an optional response cache for JSON POST endpoints.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Header is added to every request.
	Header http.Header
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	// Zero means 200ms.
	Backoff time.Duration

	// Optional on-disk cache for response bodies.
	Cache *cache.HTTPCache
	// CacheOnly serves exclusively from cache and never touches the network.
	CacheOnly bool
	// StaleOnError serves an expired cache entry when every attempt failed.
	StaleOnError bool

	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.PerRequestTimeout}
}

// PostJSON encodes in as the request body, POSTs it to rawURL and decodes the
// JSON response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	b, err := c.Post(ctx, rawURL, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Post issues a POST with context, user-agent, cache lookup and bounded retry
// for transient errors. It returns the raw response body.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte) ([]byte, error) {
	key := cache.KeyFrom(rawURL, body)
	if c.Cache != nil {
		if c.CacheOnly {
			b, err := c.Cache.LoadBody(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrCacheMiss, rawURL)
			}
			return b, nil
		}
		if c.Cache.Fresh(ctx, key) {
			if b, err := c.Cache.LoadBody(ctx, key); err == nil {
				log.Debug().Str("url", rawURL).Msg("cache hit")
				return b, nil
			}
		}
	} else if c.CacheOnly {
		return nil, errors.New("cache-only mode requires a cache")
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		b, ct, err := c.tryOnce(ctx, rawURL, body)
		if err == nil {
			if c.Cache != nil {
				if serr := c.Cache.Save(ctx, key, rawURL, ct, b); serr != nil {
					log.Warn().Err(serr).Str("url", rawURL).Msg("cache save failed")
				}
			}
			return b, nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			break
		}
		log.Debug().Err(err).Int("attempt", i+1).Str("url", rawURL).Msg("retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * backoff):
		}
	}
	if c.Cache != nil && c.StaleOnError {
		if b, err := c.Cache.LoadBody(ctx, key); err == nil {
			log.Warn().Err(lastErr).Str("url", rawURL).Msg("serving stale cache entry")
			return b, nil
		}
	}
	return nil, lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, body []byte) ([]byte, string, error) {
	c.acquire()
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return nil, "", fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", &StatusError{Code: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !isAllowedJSONContentType(contentType) {
		return nil, "", fmt.Errorf("unsupported content type: %s", contentType)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return b, contentType, nil
}

// isTransient treats 5xx, 429 and deadlines as worth another attempt.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return false
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "application/json") || strings.HasPrefix(ct, "application/x-ndjson")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
		// should not happen, but avoid blocking
	}
}
