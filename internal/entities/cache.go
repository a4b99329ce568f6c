package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opsflow/internal/constants"
	"opsflow/internal/logger"
	"opsflow/pkg/metrics"
)

const cachedMissing = "null"

// CachedLoader is a read-through Redis cache in front of another Loader.
// Redis failures degrade to direct loads.
type CachedLoader struct {
	next   Loader
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedLoader(next Loader, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedLoader {
	return &CachedLoader{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func CacheKey(orgID, kind, id string) string {
	return fmt.Sprintf("%s%s:%s:%s", constants.CacheKeyPrefixEntity, orgID, kind, id)
}

func (l *CachedLoader) Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
	key := CacheKey(orgID, kind, id)

	val, err := l.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		metrics.IncEntityCache("hit")
		if val == cachedMissing {
			return nil, nil
		}
		var entity map[string]interface{}
		if jsonErr := json.Unmarshal([]byte(val), &entity); jsonErr == nil {
			return entity, nil
		}
		l.logger.WarnwCtx(ctx, "Discarding undecodable cached entity", "key", key)
	case errors.Is(err, redis.Nil):
		metrics.IncEntityCache("miss")
	default:
		metrics.IncEntityCache("error")
		l.logger.WarnwCtx(ctx, "Entity cache read failed, loading directly",
			"key", key,
			"error", err,
		)
	}

	entity, err := l.next.Load(ctx, orgID, kind, id)
	if err != nil {
		return nil, err
	}

	l.store(ctx, key, entity)
	return entity, nil
}

func (l *CachedLoader) store(ctx context.Context, key string, entity map[string]interface{}) {
	payload := []byte(cachedMissing)
	if entity != nil {
		data, err := json.Marshal(entity)
		if err != nil {
			return
		}
		payload = data
	}

	if err := l.client.Set(ctx, key, payload, l.ttl).Err(); err != nil {
		l.logger.WarnwCtx(ctx, "Entity cache write failed",
			"key", key,
			"error", err,
		)
	}
}

// Invalidate drops a cached entity, used when the owning record changes.
func (l *CachedLoader) Invalidate(ctx context.Context, orgID, kind, id string) error {
	return l.client.Del(ctx, CacheKey(orgID, kind, id)).Err()
}
