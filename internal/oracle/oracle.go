// Package oracle serves real-world asset prices from a Pyth Hermes feed
// through a time-bounded cache.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/observability"
	"portsol-gate/internal/storage"
)

// Default configuration values.
const (
	DefaultHermesURL = "https://hermes.pyth.network"
	DefaultTTL       = 30 * time.Second

	// SOLUSDFeedID is the Pyth SOL/USD feed (mainnet and devnet).
	SOLUSDFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
)

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// Client fetches prices from Hermes and caches them per feed. The cache
// has no maximum staleness bound: during an extended feed outage the last
// good value keeps being served, however old. That trade is deliberate —
// the simulation prefers an arbitrarily stale price over no price.
type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	samples storage.PriceSampleStore // optional observation history
	logger  *log.Logger
	now     func() time.Time

	// mu guards the cache map and the per-feed fetch locks. The HTTP
	// fetch itself runs under the feed's own lock only, so a slow feed
	// never blocks cache hits for the others.
	mu         sync.Mutex
	cache      map[string]cacheEntry
	fetchLocks map[string]*sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithTTL sets the cache time-to-live.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		c.ttl = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithSampleStore records each successful fetch for offline analysis.
// Best effort: a store failure never fails a price read.
func WithSampleStore(s storage.PriceSampleStore) Option {
	return func(c *Client) {
		c.samples = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client. An empty baseURL selects the public Hermes
// endpoint.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		ttl:     DefaultTTL,
		logger:  log.New(log.Writer(), "[oracle] ", log.LstdFlags),
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
		fetchLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price returns the feed's latest price. Within the TTL the cached value
// is returned without a network call. After the TTL one fetch is issued;
// on failure the previous cached value is served however old, and false
// is returned only when no value has ever been fetched.
func (c *Client) Price(ctx context.Context, feedID string) (float64, bool) {
	if price, ok := c.cachedFresh(feedID); ok {
		return price, true
	}

	// One fetch per feed at a time; concurrent callers for the same feed
	// wait here and get the refreshed cache on re-check.
	lock := c.fetchLock(feedID)
	lock.Lock()
	defer lock.Unlock()

	if price, ok := c.cachedFresh(feedID); ok {
		return price, true
	}

	price, err := c.fetch(ctx, feedID)
	if err != nil {
		observability.RecordOracleFetch("error")
		c.logger.Printf("price fetch failed for %s: %v", feedID, err)
		c.mu.Lock()
		entry, cached := c.cache[feedID]
		c.mu.Unlock()
		if cached {
			observability.RecordOracleStaleServe()
			return entry.price, true
		}
		return 0, false
	}

	observability.RecordOracleFetch("ok")
	fetchedAt := c.now()
	c.mu.Lock()
	c.cache[feedID] = cacheEntry{price: price, fetchedAt: fetchedAt}
	c.mu.Unlock()
	c.record(ctx, feedID, price, fetchedAt)
	return price, true
}

// cachedFresh returns the cached price when it is within the TTL.
func (c *Client) cachedFresh(feedID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, cached := c.cache[feedID]
	if cached && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.price, true
	}
	return 0, false
}

// fetchLock returns the fetch mutex for a feed, creating it on first use.
func (c *Client) fetchLock(feedID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.fetchLocks[feedID]
	if !ok {
		lock = &sync.Mutex{}
		c.fetchLocks[feedID] = lock
	}
	return lock
}

// record appends the observation to the sample store, if configured.
func (c *Client) record(ctx context.Context, feedID string, price float64, fetchedAt time.Time) {
	if c.samples == nil {
		return
	}
	err := c.samples.Insert(ctx, &domain.PriceSample{
		FeedID:    feedID,
		Price:     price,
		FetchedAt: fetchedAt.UnixMilli(),
	})
	if err != nil {
		c.logger.Printf("record price sample for %s: %v", feedID, err)
	}
}

// hermesResponse is the relevant slice of the Hermes latest-price payload.
type hermesResponse struct {
	Parsed []struct {
		Price struct {
			Price string `json:"price"`
			Expo  int32  `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

// fetch performs one GET against the Hermes latest-price endpoint.
func (c *Client) fetch(ctx context.Context, feedID string) (float64, error) {
	u := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", c.baseURL, url.QueryEscape(feedID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Parsed) == 0 {
		return 0, fmt.Errorf("no price data for feed %s", feedID)
	}

	raw, err := strconv.ParseInt(parsed.Parsed[0].Price.Price, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", parsed.Parsed[0].Price.Price, err)
	}

	return float64(raw) * math.Pow(10, float64(parsed.Parsed[0].Price.Expo)), nil
}
