// Package scorecache memoises BLEU pair scores in Redis. Concurrent requests
// for the same pair are collapsed with singleflight, and Redis failures fall
// back to computing the score directly.
package scorecache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/bleu"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/redis"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "bleu:"

// Scores is the five-value vector produced by bleu.Bleus.
type Scores = [bleu.Orders + 1]float64

// Store is the subset of the Redis client used by the cache.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
}

// Cache is an evaluation.PairScorer that consults Redis before delegating
// to the wrapped scorer.
type Cache struct {
	store     Store
	next      evaluation.PairScorer
	smoothing string
	ttl       time.Duration
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New wraps next. smoothing must name the method next uses, since it is part
// of the cache key.
func New(store Store, next evaluation.PairScorer, smoothing string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		store:     store,
		next:      next,
		smoothing: smoothing,
		ttl:       ttl,
		metrics:   m,
		logger:    logger.WithComponent("score-cache"),
	}
}

// ScorePair returns the cached scores for the pair, computing and storing
// them on a miss.
func (c *Cache) ScorePair(ctx context.Context, reference, candidate []int) (Scores, error) {
	key := Key(c.smoothing, reference, candidate)
	if s, ok := c.get(ctx, key); ok {
		return s, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if s, ok := c.lookup(ctx, key); ok {
			return s, nil
		}
		s, err := c.next.ScorePair(ctx, reference, candidate)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, s)
		return s, nil
	})
	if err != nil {
		return Scores{}, err
	}
	return val.(Scores), nil
}

func (c *Cache) get(ctx context.Context, key string) (Scores, bool) {
	s, ok := c.lookup(ctx, key)
	if ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return s, true
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return Scores{}, false
}

func (c *Cache) lookup(ctx context.Context, key string) (Scores, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error().Str("key", key).Err(err).Msg("cache get failed")
		}
		return Scores{}, false
	}
	var s Scores
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		c.logger.Error().Str("key", key).Err(err).Msg("cache unmarshal failed")
		return Scores{}, false
	}
	return s, true
}

func (c *Cache) set(ctx context.Context, key string, s Scores) {
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error().Str("key", key).Err(err).Msg("cache marshal failed")
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error().Str("key", key).Err(err).Msg("cache set failed")
	}
}

// Invalidate drops every cached score.
func (c *Cache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.DeleteMatching(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating score cache: %w", err)
	}
	c.logger.Info().Int64("keys_deleted", deleted).Msg("score cache invalidated")
	return nil
}

// Stats returns the hit and miss counts since construction.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key derives the cache key of a pair under a smoothing method.
func Key(smoothing string, reference, candidate []int) string {
	raw := smoothing + "|" + joinIDs(reference) + "|" + joinIDs(candidate)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
