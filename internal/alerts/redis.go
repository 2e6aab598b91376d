package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps alerts in one hash (field chat:symbol, JSON value) and
// paused chats in a set, so both survive restarts.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection settings for RedisStore
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects and pings
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping reports connectivity for health checks
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) alertsKey() string { return s.prefix + "alerts" }
func (s *RedisStore) pausedKey() string { return s.prefix + "paused" }

func (s *RedisStore) Add(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.client.HSet(ctx, s.alertsKey(), a.key(), data).Err()
}

func (s *RedisStore) List(ctx context.Context, chatID int64) ([]Alert, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []Alert
	for _, a := range all {
		if a.ChatID == chatID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *RedisStore) All(ctx context.Context) ([]Alert, error) {
	fields, err := s.client.HGetAll(ctx, s.alertsKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Alert, 0, len(fields))
	for field, raw := range fields {
		var a Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", field, err)
		}
		out = append(out, a)
	}
	sortAlerts(out)
	return out, nil
}

func (s *RedisStore) Remove(ctx context.Context, chatID int64, symbol string) error {
	n, err := s.client.HDel(ctx, s.alertsKey(), alertKey(chatID, symbol)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkChecked rewrites the stored alert under WATCH so a concurrent Remove
// is not undone
func (s *RedisStore) MarkChecked(ctx context.Context, chatID int64, symbol string, at time.Time) error {
	key := s.alertsKey()
	field := alertKey(chatID, symbol)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, field).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var a Alert
		if err := json.Unmarshal(raw, &a); err != nil {
			return fmt.Errorf("decode alert %s: %w", field, err)
		}
		a.LastCheckedAt = at
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) SetPaused(ctx context.Context, chatID int64, paused bool) error {
	member := strconv.FormatInt(chatID, 10)
	if paused {
		return s.client.SAdd(ctx, s.pausedKey(), member).Err()
	}
	return s.client.SRem(ctx, s.pausedKey(), member).Err()
}

func (s *RedisStore) IsPaused(ctx context.Context, chatID int64) (bool, error) {
	return s.client.SIsMember(ctx, s.pausedKey(), strconv.FormatInt(chatID, 10)).Result()
}
