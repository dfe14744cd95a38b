// Package rediskv implements the persistent key-value mechanism over
// Redis. Each store bucket is one hash whose fields are the encoded keys;
// field strings are binary-safe, so encoded key bytes pass through
// unchanged and order is recovered client-side.
package rediskv

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/backend/kv"
)

func init() {
	backend.Register(factory{})
}

type factory struct{}

func (factory) Type() string { return "redis" }

func (factory) IsSupported(cfg backend.Config) bool { return cfg.Addr != "" }

func (factory) Create(cfg backend.Config) (backend.Driver, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return kv.NewDriver("redis", &service{client: client}), nil
}

type service struct {
	client *redis.Client
}

func (s *service) Get(ctx context.Context, bucket string, k []byte) ([]byte, error) {
	val, err := s.client.HGet(ctx, bucket, string(k)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from %s: %w", bucket, err)
	}
	return []byte(val), nil
}

func (s *service) Set(ctx context.Context, bucket string, k, v []byte) error {
	if err := s.client.HSet(ctx, bucket, string(k), v).Err(); err != nil {
		return fmt.Errorf("failed to set key in %s: %w", bucket, err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, bucket string, k []byte) (bool, error) {
	n, err := s.client.HDel(ctx, bucket, string(k)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete key from %s: %w", bucket, err)
	}
	return n > 0, nil
}

func (s *service) Scan(ctx context.Context, bucket string) ([]kv.Pair, error) {
	all, err := s.client.HGetAll(ctx, bucket).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", bucket, err)
	}
	pairs := make([]kv.Pair, 0, len(all))
	for k, v := range all {
		pairs = append(pairs, kv.Pair{Key: []byte(k), Value: []byte(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0
	})
	return pairs, nil
}

func (s *service) DropBucket(ctx context.Context, bucket string) (int, error) {
	n, err := s.client.HLen(ctx, bucket).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to size %s: %w", bucket, err)
	}
	if err := s.client.Del(ctx, bucket).Err(); err != nil {
		return 0, fmt.Errorf("failed to drop %s: %w", bucket, err)
	}
	return int(n), nil
}

func (s *service) Close() error {
	return s.client.Close()
}
