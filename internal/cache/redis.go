package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Brownie44l1/alaska2/internal/model"
)

const keyPrefix = "alaska2:prediction:"

// Redis caches prediction responses by image digest.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

func Key(digest string) string {
	return keyPrefix + digest
}

// Get reports ok=false without an error on a miss.
func (r *Redis) Get(ctx context.Context, digest string) (*model.PredictionResponse, bool, error) {
	data, err := r.client.Get(ctx, Key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var resp model.PredictionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached prediction: %w", err)
	}
	return &resp, true, nil
}

func (r *Redis) Set(ctx context.Context, digest string, resp *model.PredictionResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	if err := r.client.Set(ctx, Key(digest), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
