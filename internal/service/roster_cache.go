package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/observability"
)

const rosterCacheVersionKey = "roster:students:version"

// RosterCache is a read-through cache for roster listings. Bumping the version key on every
// mutation orphans every cached page at once. A nil client disables caching.
type RosterCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRosterCache constructs a roster cache.
func NewRosterCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RosterCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RosterCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "roster_cache").Logger(),
	}
}

// Enabled reports whether a Redis client backs the cache.
func (c *RosterCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get returns a cached listing for the request, if present, along with the key resolved
// against the current version. Pass that key to Set so a listing read before a mutation
// never lands under the post-mutation version. The key is empty when caching is unavailable.
func (c *RosterCache) Get(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, string, bool) {
	if !c.Enabled() {
		return dto.StudentListResponse{}, "", false
	}

	key, err := c.key(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to resolve roster cache key")
		observability.CacheRequests().WithLabelValues("error").Inc()
		return dto.StudentListResponse{}, "", false
	}

	cached, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read roster cache")
			observability.CacheRequests().WithLabelValues("error").Inc()
		} else {
			observability.CacheRequests().WithLabelValues("miss").Inc()
		}
		return dto.StudentListResponse{}, key, false
	}

	var response dto.StudentListResponse
	if err := json.Unmarshal(cached, &response); err != nil {
		observability.CacheRequests().WithLabelValues("error").Inc()
		return dto.StudentListResponse{}, key, false
	}

	observability.CacheRequests().WithLabelValues("hit").Inc()
	response.CacheHit = true
	return response, key, true
}

// Set stores a listing under a key previously returned by Get. An empty key is ignored.
func (c *RosterCache) Set(ctx context.Context, key string, response dto.StudentListResponse) {
	if !c.Enabled() || key == "" {
		return
	}

	response.CacheHit = false
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache roster listing")
	}
}

// Invalidate orphans every cached listing.
func (c *RosterCache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Incr(ctx, rosterCacheVersionKey).Err()
}

func (c *RosterCache) key(ctx context.Context, req dto.StudentListRequest) (string, error) {
	version, err := c.client.Get(ctx, rosterCacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}

	fingerprint := fmt.Sprintf("%t|%d|%d|%s|%s|%s|%s", req.Paginate, req.Page, req.Size, req.Search, req.Cohort, req.Status, req.Sort)
	sum := sha256.Sum256([]byte(fingerprint))

	return fmt.Sprintf("roster:students:v%d:%s", version, hex.EncodeToString(sum[:8])), nil
}
