// Package fetch performs HTTP GETs that impersonate real browsers,
// rotating TLS fingerprints until one is let through.
package fetch

import (
	"context"
	"fmt"
	"io"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/core"
)

// maxBody caps how much of a page is read into memory.
const maxBody = 8 << 20

// Response is a successful fetch.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string // final URL after redirects
}

// Doer performs one GET with a single fingerprint.
type Doer func(ctx context.Context, url string, timeout time.Duration) (*Response, error)

// Profile is one browser fingerprint.
type Profile struct {
	Name      string
	UserAgent string
	client    profiles.ClientProfile
}

// DefaultProfiles is the rotation order.
var DefaultProfiles = []Profile{
	{"chrome_120", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", profiles.Chrome_120},
	{"safari_15_6_1", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.6.1 Safari/605.1.15", profiles.Safari_15_6_1},
	{"chrome_110", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36", profiles.Chrome_110},
	{"chrome_117", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36", profiles.Chrome_117},
	{"safari_ios_16_0", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1", profiles.Safari_IOS_16_0},
}

// Fetcher is stateless apart from its configuration and safe for
// concurrent use.
type Fetcher struct {
	profiles   []Profile
	newDoer    func(Profile) Doer
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDoer replaces the per-profile transport.
func WithDoer(newDoer func(Profile) Doer) Option {
	return func(f *Fetcher) { f.newDoer = newDoer }
}

// WithProfiles replaces the rotation order.
func WithProfiles(p ...Profile) Option {
	return func(f *Fetcher) { f.profiles = p }
}

// WithRetryDelay sets the wait between fingerprints.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.retryDelay = d }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New creates a Fetcher with the default profiles and a 3 s delay.
func New(logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		profiles:   DefaultProfiles,
		newDoer:    tlsDoer,
		retryDelay: 3 * time.Second,
		sleep:      Sleep,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs url, trying each profile in turn. A 404 fails at once with
// core.ErrFetchNotFound; when every profile fails the result is
// core.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	var lastErr error
	for i, p := range f.profiles {
		if i > 0 {
			if err := f.sleep(ctx, f.retryDelay); err != nil {
				return nil, err
			}
		}

		resp, err := f.newDoer(p)(ctx, url, timeout)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == fhttp.StatusOK:
			return resp, nil
		case resp.StatusCode == fhttp.StatusNotFound:
			return nil, core.WrapError(core.ErrFetchNotFound, fmt.Errorf("GET %s: 404", url))
		default:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Debug("fetch attempt failed",
			zap.String("url", url),
			zap.String("profile", p.Name),
			zap.Error(lastErr),
		)
	}
	return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("GET %s: %w", url, lastErr))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func tlsDoer(p Profile) Doer {
	return func(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
		seconds := int(timeout.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(),
			tls_client.WithTimeoutSeconds(seconds),
			tls_client.WithClientProfile(p.client),
			tls_client.WithCookieJar(tls_client.NewCookieJar()),
		)
		if err != nil {
			return nil, err
		}

		req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header = fhttp.Header{
			"accept":             {"text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7"},
			"accept-language":    {"en-US,en;q=0.9"},
			"user-agent":         {p.UserAgent},
			fhttp.HeaderOrderKey: {"accept", "accept-language", "user-agent"},
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}

		final := url
		if resp.Request != nil && resp.Request.URL != nil {
			final = resp.Request.URL.String()
		}
		return &Response{StatusCode: resp.StatusCode, Body: body, URL: final}, nil
	}
}
