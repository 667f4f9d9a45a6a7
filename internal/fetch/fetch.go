// Package fetch retrieves page snapshots and raw payloads over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTooLarge is returned when a body exceeds MaxBodyBytes.
	ErrTooLarge = errors.New("response body too large")
	// ErrTooManyRedirects is returned when RedirectMaxHops is exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// DefaultAllowedContentTypes covers rendered pages and raw JSON payloads.
var DefaultAllowedContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"application/json",
	"application/json+protobuf",
	"text/plain",
}

const (
	defaultBackoff      = 200 * time.Millisecond
	defaultRedirectHops = 5
	defaultMaxBodyBytes = 32 << 20
)

// Client performs GET requests with a per-request timeout, bounded retry on
// transient failures, a redirect cap and an optional concurrency limit.
// A Client must not be copied after first use.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt separately.
	PerRequestTimeout time.Duration
	// RetryBackoff is the base delay between attempts, scaled by attempt
	// number. Zero means 200ms.
	RetryBackoff time.Duration
	// RedirectMaxHops caps redirects. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int
	// AllowedContentTypes are accepted media types; "text/html" also admits
	// "text/html; charset=utf-8". Empty means DefaultAllowedContentTypes.
	AllowedContentTypes []string
	// MaxBodyBytes caps the body size. Zero means 32 MiB.
	MaxBodyBytes int64

	Log *zerolog.Logger

	slots     chan struct{}
	slotsOnce sync.Once
}

// statusError carries a non-2xx status.
type statusError struct{ code int }

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

func (c *Client) logger() *zerolog.Logger {
	if c.Log == nil {
		return &log.Logger
	}
	return c.Log
}

// Get fetches rawURL and returns the body and its content type. Transient
// failures (5xx, per-attempt deadline) are retried up to MaxAttempts.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	attempts := max(c.MaxAttempts, 1)
	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	lg := c.logger().With().Str("url", rawURL).Logger()
	for attempt := 1; ; attempt++ {
		body, ct, err := c.once(ctx, u)
		if err == nil {
			lg.Debug().Str("content_type", ct).Int("bytes", len(body)).Int("attempt", attempt).Msg("fetched")
			return body, ct, nil
		}
		if attempt >= attempts || !isTransient(err) || ctx.Err() != nil {
			return nil, "", err
		}
		lg.Debug().Err(err).Int("attempt", attempt).Msg("transient fetch error, retrying")
		wait := time.NewTimer(time.Duration(attempt) * backoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, "", ctx.Err()
		case <-wait.C:
		}
	}
}

func (c *Client) once(ctx context.Context, u *url.URL) ([]byte, string, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, "", err
	}
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, "", &statusError{code: resp.StatusCode}
	}
	ct := resp.Header.Get("Content-Type")
	if !c.allowed(ct) {
		return nil, "", fmt.Errorf("unsupported content type %q", ct)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", ErrTooLarge
	}
	return body, ct, nil
}

// client returns a shallow copy of HTTPClient carrying the redirect policy.
func (c *Client) client() *http.Client {
	var hc http.Client
	if c.HTTPClient != nil {
		hc = *c.HTTPClient
	}
	hops := c.RedirectMaxHops
	if hops <= 0 {
		hops = defaultRedirectHops
	}
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > hops {
			return ErrTooManyRedirects
		}
		if !isHTTPScheme(req.URL) {
			return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
		}
		return nil
	}
	return &hc
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 500
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")
}

func (c *Client) allowed(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	types := c.AllowedContentTypes
	if len(types) == 0 {
		types = DefaultAllowedContentTypes
	}
	for _, t := range types {
		if strings.EqualFold(mt, t) {
			return true
		}
	}
	return false
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.slotsOnce.Do(func() { c.slots = make(chan struct{}, c.MaxConcurrent) })
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent > 0 {
		<-c.slots
	}
}
