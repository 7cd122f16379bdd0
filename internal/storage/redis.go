package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis keeps each bucket as one hash named <prefix>:<bucket>.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and pings it once.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Connected to Redis")
	return NewRedisFromClient(client, cfg.Prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "hints"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(bucket string) string {
	return r.prefix + ":" + bucket
}

// Load returns every record of a bucket.
func (r *Redis) Load(ctx context.Context, bucket string) (map[string][]byte, error) {
	vals, err := r.client.HGetAll(ctx, r.key(bucket)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(vals))
	for id, v := range vals {
		out[id] = []byte(v)
	}
	return out, nil
}

// Put creates or replaces one record.
func (r *Redis) Put(ctx context.Context, bucket, id string, value []byte) error {
	return r.client.HSet(ctx, r.key(bucket), id, value).Err()
}

// Delete removes one record.
func (r *Redis) Delete(ctx context.Context, bucket, id string) error {
	return r.client.HDel(ctx, r.key(bucket), id).Err()
}

// Clear removes the bucket hash.
func (r *Redis) Clear(ctx context.Context, bucket string) error {
	return r.client.Del(ctx, r.key(bucket)).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
