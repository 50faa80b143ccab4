package urlsafe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

// RobotsCache caches parsed robots.txt verdict data per domain with a TTL.
// Expired entries are treated as misses and overwritten on the next Put.
type RobotsCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   specs.Clock
	entries map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsCache builds a cache with the given TTL. The injected clock keeps
// expiry deterministic under test.
func NewRobotsCache(ttl time.Duration, clock specs.Clock) *RobotsCache {
	return &RobotsCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]robotsEntry),
	}
}

// Get returns the cached robots data for host, if present and fresh.
func (c *RobotsCache) Get(host string) (*robotstxt.RobotsData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[host]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(entry.fetchedAt) > c.ttl {
		delete(c.entries, host)
		return nil, false
	}
	return entry.data, true
}

// Put stores robots data for host, stamping it with the current time.
func (c *RobotsCache) Put(host string, data *robotstxt.RobotsData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[host] = robotsEntry{data: data, fetchedAt: c.clock.Now()}
}

// RobotsPolicy answers "may this agent fetch this path" per robots.txt,
// fetching and caching the file per domain. A missing or unreachable
// robots.txt allows everything for that domain; that is the web's contract.
type RobotsPolicy struct {
	client    *http.Client
	cache     *RobotsCache
	userAgent string
	logger    *zap.Logger
}

// NewRobotsPolicy builds a policy using the given HTTP client and cache.
func NewRobotsPolicy(client *http.Client, cache *RobotsCache, userAgent string, logger *zap.Logger) *RobotsPolicy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsPolicy{
		client:    client,
		cache:     cache,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Allowed reports whether rawURL may be fetched under robots.txt rules.
func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parsing url for robots check: %w", err)
	}
	data, err := p.robotsFor(ctx, parsed)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil
	}
	return data.TestAgent(parsed.Path, p.userAgent), nil
}

func (p *RobotsPolicy) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Host
	if data, ok := p.cache.Get(host); ok {
		return data, nil
	}
	robotsURL := u.Scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building robots request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("reading robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		p.logger.Warn("unparseable robots.txt; allowing domain",
			zap.String("host", host), zap.Error(err))
		data = nil
	}
	p.cache.Put(host, data)
	return data, nil
}
