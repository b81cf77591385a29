package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"salesmap/internal/logger"
	"salesmap/internal/metrics"
)

// KeyPrefix：Redis 键前缀
const KeyPrefix = "session:"

// 文档注释：Redis 会话存储
// 背景：多实例部署时共享会话；值为 JSON，读取命中后续期 TTL。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	b, err := r.rdb.Get(ctx, KeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.SessionMissesTotal.WithLabelValues("redis").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		logger.Session(id).Warn("session_decode_error", "err", err)
		metrics.SessionMissesTotal.WithLabelValues("redis").Inc()
		return nil, ErrNotFound
	}
	if err := r.rdb.Expire(ctx, KeyPrefix+id, r.ttl).Err(); err != nil {
		logger.Session(id).Debug("session_touch_error", "err", err)
	}
	metrics.SessionHitsTotal.WithLabelValues("redis").Inc()
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, KeyPrefix+s.ID, b, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, KeyPrefix+id).Err()
}
