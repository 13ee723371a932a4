package s5_gate

import (
	"context"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/pkg/logger"
	"github.com/wonny/stagegate/pkg/redis"
)

// Decider is anything that can produce a gate decision
type Decider interface {
	Decide(ctx context.Context, entityID string, date time.Time) (contracts.GateDecision, error)
}

// CachedEngine memoizes decisions in Redis, keyed by config hash + store generation
// Redis 비활성이면 Engine 그대로 통과
type CachedEngine struct {
	engine     *Engine
	cache      *redis.Cache
	configHash string
	ttl        time.Duration
	logger     *logger.Logger
}

// NewCachedEngine wraps an engine with a decision cache
func NewCachedEngine(engine *Engine, cache *redis.Cache, configHash string, ttl time.Duration, log *logger.Logger) *CachedEngine {
	return &CachedEngine{
		engine:     engine,
		cache:      cache,
		configHash: configHash,
		ttl:        ttl,
		logger:     log.WithField("module", "gate_cache"),
	}
}

// Decide returns a cached decision or computes and stores one
func (c *CachedEngine) Decide(ctx context.Context, entityID string, date time.Time) (contracts.GateDecision, error) {
	key, err := c.cacheKey(ctx, entityID, date)
	if err != nil {
		return contracts.GateDecision{}, err
	}

	var (
		dec       contracts.GateDecision
		decideErr error
	)
	err = c.cache.GetOrSet(ctx, key, &dec, c.ttl, func() (interface{}, error) {
		d, err := c.engine.Decide(ctx, entityID, date)
		decideErr = err
		return d, err
	})
	if decideErr != nil {
		return contracts.GateDecision{}, decideErr
	}
	if err != nil {
		// 캐시 손상: 엔진으로 직접 판정
		c.logger.WithError(err).WithEntity(entityID).Warn("Gate cache read failed")
		return c.engine.Decide(ctx, entityID, date)
	}
	return dec, nil
}

// cacheKey loads the store first so the key carries the generation the decision is computed from
// generation이 키에 들어가므로 Refresh 후 이전 결정은 자연 만료
func (c *CachedEngine) cacheKey(ctx context.Context, entityID string, date time.Time) (string, error) {
	if c.engine.cfg.Enabled {
		if err := c.engine.store.Load(ctx); err != nil {
			return "", err
		}
	}
	gen := c.engine.store.Stats().Generation
	return redis.GateKey(c.configHash, gen, entityID, contracts.ISODate(date)), nil
}
