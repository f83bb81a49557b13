package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ledger:idempotency:"

// responseCache is a Redis read-through copy of completed records. A nil
// cache misses on every get and drops every put.
type responseCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func newResponseCache(rdb redis.Cmdable, ttl time.Duration) *responseCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &responseCache{rdb: rdb, ttl: ttl}
}

type cachedRecord struct {
	Key         string `json:"key"`
	Owner       string `json:"owner"`
	Hash        string `json:"hash"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

func (c *responseCache) get(ctx context.Context, key string) (*Record, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("idempotency cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var cached cachedRecord
	if err := json.Unmarshal(val, &cached); err != nil {
		zap.L().Warn("idempotency cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &Record{
		Request: Request{
			Key:    cached.Key,
			Owner:  cached.Owner,
			Hash:   cached.Hash,
			Method: cached.Method,
			Path:   cached.Path,
		},
		Response: Response{
			Status:      cached.Status,
			Body:        cached.Body,
			ContentType: cached.ContentType,
		},
		ServedBy: "redis",
	}, true
}

func (c *responseCache) put(ctx context.Context, rec Record) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(cachedRecord{
		Key:         rec.Key,
		Owner:       rec.Owner,
		Hash:        rec.Hash,
		Method:      rec.Method,
		Path:        rec.Path,
		Status:      rec.Status,
		Body:        rec.Body,
		ContentType: rec.ContentType,
	})
	if err != nil {
		zap.L().Warn("idempotency cache encode failed", zap.String("key", rec.Key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+rec.Key, payload, c.ttl).Err(); err != nil {
		zap.L().Warn("idempotency cache write failed", zap.String("key", rec.Key), zap.Error(err))
	}
}
