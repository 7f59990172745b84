package wikidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"metrograph/internal/domain"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ResponseCache persists raw entity bundles between runs. Implementations
// must treat a nil result with nil error as a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Cache             ResponseCache
	CacheTTL          time.Duration
	Logger            *slog.Logger
}

// Client fetches entities from the Wikidata wbgetentities endpoint. Each
// entity is fetched from the network at most once per run; the optional
// response cache additionally persists bundles across runs.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      ResponseCache
	cacheTTL   time.Duration
	logger     *slog.Logger

	mu   sync.Mutex
	memo map[domain.EntityID]*Entity
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: gzhttp.Transport(&http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
		limiter:  limiter,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   logger.With("component", "wikidata_client"),
		memo:     make(map[domain.EntityID]*Entity),
	}
}

// FetchEntity returns the attribute bundle for one entity. It returns
// ErrNotFound for ids Wikidata reports as missing.
func (c *Client) FetchEntity(ctx context.Context, id domain.EntityID) (*Entity, error) {
	c.mu.Lock()
	if entity, ok := c.memo[id]; ok {
		c.mu.Unlock()
		return entity, nil
	}
	c.mu.Unlock()

	if raw := c.cacheGet(ctx, id); raw != nil {
		entity, err := decodeEntity(raw, id)
		if err == nil {
			c.remember(id, entity)
			return entity, nil
		}
		c.logger.Warn("discarding unreadable cached entity", "id", id, "error", err)
	}

	raw, err := c.request(ctx, id)
	if err != nil {
		return nil, err
	}

	entity, err := decodeEntity(raw, id)
	if err != nil {
		return nil, err
	}

	c.cacheSet(ctx, id, raw)
	c.remember(id, entity)
	return entity, nil
}

func (c *Client) request(ctx context.Context, id domain.EntityID) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("format", "json")
	params.Set("props", "labels|claims|sitelinks")
	params.Set("ids", string(id))

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("entity fetched", "id", id, "duration_ms", time.Since(start).Milliseconds())
	return body, nil
}

func decodeEntity(raw []byte, id domain.EntityID) (*Entity, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if apiResp.Error != nil {
		if apiResp.Error.Code == "no-such-entity" {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("API error %s: %s", apiResp.Error.Code, apiResp.Error.Info)
	}

	wireEntity, ok := apiResp.Entities[string(id)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if wireEntity.Missing != nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	return wireEntity.toEntity(string(id)), nil
}

func (c *Client) remember(id domain.EntityID, entity *Entity) {
	c.mu.Lock()
	c.memo[id] = entity
	c.mu.Unlock()
}

func (c *Client) cacheKey(id domain.EntityID) string {
	return fmt.Sprintf("entity:%s", id)
}

func (c *Client) cacheGet(ctx context.Context, id domain.EntityID) []byte {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, c.cacheKey(id))
	if err != nil {
		c.logger.Warn("response cache read failed", "id", id, "error", err)
		return nil
	}
	return raw
}

func (c *Client) cacheSet(ctx context.Context, id domain.EntityID, raw []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(id), raw, c.cacheTTL); err != nil {
		c.logger.Warn("response cache write failed", "id", id, "error", err)
	}
}
