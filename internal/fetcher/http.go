package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/afd-analytics/stationdist/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	BaseBackoff  time.Duration
	RateLimiters map[string]*rate.Limiter
}

// AdaptiveLimiter wraps a rate.Limiter that speeds up 20% on success (capped
// at 2x the initial rate) and halves on 429 (floored at a quarter).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit lowers the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher with per-host rate limiting and retries.
// OpenStreetMap's public services require a descriptive User-Agent and at
// most one Nominatim request per second.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	adaptive map[string]*AdaptiveLimiter
	fallback *rate.Limiter
}

// DefaultRateLimiters returns the fixed per-host limiters.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"nominatim.openstreetmap.org": rate.NewLimiter(1, 1),
		"www2.census.gov":             rate.NewLimiter(5, 5),
	}
}

// DefaultAdaptiveLimiters returns adaptive limiters for Overpass mirrors,
// which answer 429 when their slot quota is exhausted.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"overpass-api.de":       NewAdaptiveLimiter(rate.Every(2*time.Second), 1),
		"lz4.overpass-api.de":   NewAdaptiveLimiter(rate.Every(2*time.Second), 1),
		"overpass.kumi.systems": NewAdaptiveLimiter(rate.Every(2*time.Second), 1),
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "stationdist/1.0"
	}

	limiters := DefaultRateLimiters()
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: limiters,
		adaptive: DefaultAdaptiveLimiters(),
		fallback: rate.NewLimiter(20, 20),
	}
}

func (f *HTTPFetcher) wait(ctx context.Context, host string) error {
	if a, ok := f.adaptive[host]; ok {
		return a.Wait(ctx)
	}
	if lim, ok := f.limiters[host]; ok {
		return lim.Wait(ctx)
	}
	return f.fallback.Wait(ctx)
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	adaptive := f.adaptive[host]
	log := zap.L().With(zap.String("component", "fetcher.http"), zap.String("host", host))

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.wait(ctx, host); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "request cancelled")
			}
			lastErr = err
			log.Warn("http request failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			f.backoff(ctx, attempt)
			continue
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(
				eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Redacted()), resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
				adaptive.OnRateLimit()
			}
			log.Warn("transient status, retrying", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			f.backoff(ctx, attempt)
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(f.opts.BaseBackoff) * math.Pow(2, float64(attempt)))
	d = min(d, 30*time.Second)
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, eris.Wrap(err, "parse url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, req.URL.Redacted())
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL into path via a temporary sibling file so a
// failed transfer never leaves a truncated file behind.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "create dir")
	}

	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}

	n, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "write file")
	}

	if err := os.Rename(tmp, path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
