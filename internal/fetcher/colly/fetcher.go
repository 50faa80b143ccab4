// Package collyfetcher implements the plain HTTP fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/ratelimit"
	"github.com/orefield/specharvest/internal/specs"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements specs.Fetcher using the Colly collector. Robots and
// address safety are enforced upstream by the URL gate, so the collector
// itself never consults robots.txt.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	retry         *RetryPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher. A nil limiter disables per-domain throttling.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		retry:         NewRetryPolicy(),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET using Colly, waiting on the per-domain
// limiter first and retrying transient failures with jittered backoff.
func (f *Fetcher) Fetch(ctx context.Context, request specs.FetchRequest) (specs.FetchResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return specs.FetchResponse{}, err
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := f.fetchOnce(ctx, request)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt+1) {
			break
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return specs.FetchResponse{}, fmt.Errorf("fetch retry canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return specs.FetchResponse{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, request specs.FetchRequest) (specs.FetchResponse, error) {
	var (
		result   specs.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	// Retries revisit the same URL, so the dedup store must not reject them.
	collector.AllowURLRevisit = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = specs.FetchResponse{
			URL:          r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			ContentType:  r.Headers.Get("Content-Type"),
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
			UsedHeadless: false,
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return specs.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return specs.FetchResponse{}, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return specs.FetchResponse{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
