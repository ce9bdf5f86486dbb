package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tidecharts/tilecache/pkg/metrics"
)

const redisKeyPrefix = "tile:"

// RedisStore keeps tiles in a Redis instance shared between planning
// stations on the same boat network.
type RedisStore struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) redisKey(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) Get(key string) ([]byte, bool, error) {
	ctx := context.Background()

	start := time.Now()
	data, err := s.client.HGet(ctx, s.redisKey(key), "data").Bytes()
	metrics.RedisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		metrics.RedisErrors.WithLabelValues("get").Inc()
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	return data, true, nil
}

func (s *RedisStore) Set(key string, data []byte, access time.Time) error {
	ctx := context.Background()

	start := time.Now()
	err := s.client.HSet(ctx, s.redisKey(key),
		"data", data,
		"access", access.UnixNano(),
	).Err()
	metrics.RedisOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RedisErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (s *RedisStore) Touch(key string, access time.Time) error {
	ctx := context.Background()

	err := s.client.HSet(ctx, s.redisKey(key), "access", access.UnixNano()).Err()
	if err != nil {
		metrics.RedisErrors.WithLabelValues("touch").Inc()
		return fmt.Errorf("redis touch error: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(key string) error {
	ctx := context.Background()

	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		metrics.RedisErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (s *RedisStore) Entries() ([]Entry, error) {
	ctx := context.Background()

	var entries []Entry
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()

		fields, err := s.client.HMGet(ctx, redisKey, "access").Result()
		if err != nil {
			metrics.RedisErrors.WithLabelValues("entries").Inc()
			return nil, fmt.Errorf("redis entries error: %w", err)
		}
		size, err := s.client.HStrLen(ctx, redisKey, "data").Result()
		if err != nil {
			metrics.RedisErrors.WithLabelValues("entries").Inc()
			return nil, fmt.Errorf("redis entries error: %w", err)
		}

		var access int64
		if raw, ok := fields[0].(string); ok {
			access, _ = strconv.ParseInt(raw, 10, 64)
		}

		entries = append(entries, Entry{
			Key:        strings.TrimPrefix(redisKey, redisKeyPrefix),
			Size:       size,
			LastAccess: time.Unix(0, access),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan error: %w", err)
	}

	return entries, nil
}

func (s *RedisStore) Clear() error {
	ctx := context.Background()

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			metrics.RedisErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("redis clear error: %w", err)
		}
	}
	return iter.Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
