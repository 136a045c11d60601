package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/afd-analytics/stationdist/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "Pflugerville", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"lat":"30.44"}]`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/search?q=Pflugerville")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `[{"lat":"30.44"}]`, string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("shapefile bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	path := filepath.Join(t.TempDir(), "nested", "roads.zip")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/roads.zip", path)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shapefile bytes", string(data))

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadToFile_ErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	path := filepath.Join(t.TempDir(), "missing.zip")

	_, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	data, _ := io.ReadAll(body)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted_IsTransient(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_Non200IsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher()
	_, err := f.Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestRateLimiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := NewHTTPFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{
			u.Host: rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		},
	})

	start := time.Now()
	for range 3 {
		body, err := f.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		body.Close()
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDefaultRateLimiters(t *testing.T) {
	limiters := DefaultRateLimiters()
	require.Contains(t, limiters, "nominatim.openstreetmap.org")
	require.Contains(t, limiters, "www2.census.gov")
	assert.Equal(t, rate.Limit(1), limiters["nominatim.openstreetmap.org"].Limit())
}

func TestDefaultAdaptiveLimiters(t *testing.T) {
	limiters := DefaultAdaptiveLimiters()
	for _, host := range []string{"overpass-api.de", "lz4.overpass-api.de", "overpass.kumi.systems"} {
		require.Contains(t, limiters, host)
		assert.Equal(t, rate.Every(2*time.Second), limiters[host].Limit())
	}
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "stationdist/1.0", f.opts.UserAgent)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, 5*time.Minute, f.client.Timeout)
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(10, 1)

	a.OnSuccess()
	assert.InDelta(t, 12.0, float64(a.Limit()), 0.001)

	for range 20 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(a.Limit()), 0.001)

	for range 20 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 0.001)
}

func TestAdaptiveLimiter_WaitCancelled(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Every(time.Hour), 1)
	require.NoError(t, a.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, a.Wait(ctx))
}

func TestDoWithRetry_429SlowsAdaptiveHost(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := newTestFetcher()
	limiter := NewAdaptiveLimiter(100, 10)
	f.adaptive[u.Host] = limiter

	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()

	// halved to 50, then raised 20% by the success
	assert.InDelta(t, 60.0, float64(limiter.Limit()), 0.001)
	assert.Equal(t, int32(2), attempts.Load())
}
