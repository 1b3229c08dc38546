package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gridstream-data/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// KV 键值存储接口
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKV Redis 键值存储
type RedisKV struct {
	c *redis.Client
}

// NewRedisKV 创建 Redis KV
func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

// LatestDatumStore 每流最新 datum 的 KV 缓存
// 接收路径每次成功写入后更新；most-recent 查询优先走这里，未命中回退 Postgres
type LatestDatumStore struct {
	kv  KV
	ttl time.Duration
}

// NewLatestDatumStore 创建最新 datum 缓存
func NewLatestDatumStore(kv KV, ttl time.Duration) *LatestDatumStore {
	return &LatestDatumStore{kv: kv, ttl: ttl}
}

func latestKey(streamID uuid.UUID) string {
	return "datum:latest:" + streamID.String()
}

// Put 写入最新 datum；仅当比已缓存的更新时覆盖由调用方保证（接收乱序允许后写覆盖）
func (s *LatestDatumStore) Put(ctx context.Context, d *domain.Datum) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal latest datum: %w", err)
	}
	return s.kv.Set(ctx, latestKey(d.StreamID), string(payload), s.ttl)
}

// Get 读取最新 datum；未命中返回 ErrMiss
func (s *LatestDatumStore) Get(ctx context.Context, streamID uuid.UUID) (*domain.Datum, error) {
	val, err := s.kv.Get(ctx, latestKey(streamID))
	if err != nil {
		return nil, err
	}
	var d domain.Datum
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest datum: %w", err)
	}
	return &d, nil
}
