package state

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opsconsole/internal/errs"
	"opsconsole/internal/schema"
)

// RedisConfig holds Redis connection settings for the state store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "opsconsole",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisStore is the durable Store backed by Redis. State rows are JSON
// values keyed by alert id; rows are never deleted, only rewritten, so a
// simple read-modify-write with last-write-wins matches the concurrency
// contract.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// CloseConn closes the underlying Redis connection.
func (s *RedisStore) CloseConn() error {
	return s.client.Close()
}

func (s *RedisStore) redisKey(alertID string) string {
	return s.prefix + ":alertstate:" + alertID
}

// Get returns the state for one alert, or the explicit default.
func (s *RedisStore) Get(ctx context.Context, key schema.SourceKey) (*AlertState, error) {
	st, err := s.GetByID(ctx, key.ID())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return DefaultState(key), nil
	}
	return st, nil
}

// GetByID returns the state for an operator-facing alert id, nil when no
// row exists.
func (s *RedisStore) GetByID(ctx context.Context, alertID string) (*AlertState, error) {
	data, err := s.client.Get(ctx, s.redisKey(alertID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("state read failed for %s: %w", alertID, err)
	}

	var st AlertState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt state row for %s: %w", alertID, err)
	}
	return &st, nil
}

// GetBatch returns states keyed by alert id.
func (s *RedisStore) GetBatch(ctx context.Context, keys []schema.SourceKey) (map[string]*AlertState, error) {
	if len(keys) == 0 {
		return map[string]*AlertState{}, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.redisKey(key.ID())
	}

	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("state batch read failed: %w", err)
	}

	out := make(map[string]*AlertState, len(keys))
	for i, key := range keys {
		id := key.ID()
		raw, ok := values[i].(string)
		if !ok {
			out[id] = DefaultState(key)
			continue
		}
		var st AlertState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("corrupt state row for %s: %w", id, err)
		}
		out[id] = &st
	}
	return out, nil
}

// mutateBatch applies fn to every key's current state and writes the
// results in one pipeline. Validation happens before any write.
func (s *RedisStore) mutateBatch(ctx context.Context, keys []schema.SourceKey, fn func(*AlertState)) error {
	states, err := s.GetBatch(ctx, keys)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	pipe := s.client.TxPipeline()
	for _, key := range keys {
		st := states[key.ID()]
		fn(st)
		st.UpdatedAt = now

		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal state for %s: %w", st.AlertID, err)
		}
		pipe.Set(ctx, s.redisKey(st.AlertID), data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state batch write failed: %w", err)
	}
	return nil
}

// TakeOwnership sets the owner for every alert in the batch.
func (s *RedisStore) TakeOwnership(ctx context.Context, keys []schema.SourceKey, actor string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if actor == "" {
		return errs.Validationf("ownership requires an actor")
	}

	return s.mutateBatch(ctx, keys, func(st *AlertState) {
		st.Owner = actor
	})
}

// ReleaseOwnership clears the owner; no-op for unowned alerts.
func (s *RedisStore) ReleaseOwnership(ctx context.Context, keys []schema.SourceKey) error {
	if err := validateKeys(keys); err != nil {
		return err
	}

	return s.mutateBatch(ctx, keys, func(st *AlertState) {
		st.Owner = ""
	})
}

// Close marks every alert in the batch closed.
func (s *RedisStore) Close(ctx context.Context, keys []schema.SourceKey, actor, note string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if note == "" {
		return errs.Validationf("close requires a note")
	}
	if actor == "" {
		return errs.Validationf("close requires an actor")
	}

	now := time.Now().UTC()
	return s.mutateBatch(ctx, keys, func(st *AlertState) {
		st.Closed = true
		st.ClosedAt = &now
		st.CloseNote = note
		st.ClosedBy = actor
	})
}

// Reopen clears the closure of a closed alert, preserving ownership.
func (s *RedisStore) Reopen(ctx context.Context, key schema.SourceKey) error {
	if err := validateKeys([]schema.SourceKey{key}); err != nil {
		return err
	}

	st, err := s.GetByID(ctx, key.ID())
	if err != nil {
		return err
	}
	if st == nil || !st.Closed {
		return errs.Conflictf("alert %s has no closure to reopen", key.ID())
	}

	st.Closed = false
	st.ClosedAt = nil
	st.CloseNote = ""
	st.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", st.AlertID, err)
	}
	if err := s.client.Set(ctx, s.redisKey(st.AlertID), data, 0).Err(); err != nil {
		return fmt.Errorf("state write failed for %s: %w", st.AlertID, err)
	}
	return nil
}

// LinkTicket records the linked ticket for every alert in the batch.
func (s *RedisStore) LinkTicket(ctx context.Context, keys []schema.SourceKey, ticketID, summary string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if ticketID == "" {
		return errs.Validationf("link requires a ticket id")
	}

	return s.mutateBatch(ctx, keys, func(st *AlertState) {
		st.LinkedTicketID = ticketID
		st.LinkedTicketSummary = summary
	})
}

// SetCompanyMatch caches the ticket-correlation result for an alert.
func (s *RedisStore) SetCompanyMatch(ctx context.Context, key schema.SourceKey, companyID, companyName string) error {
	if err := validateKeys([]schema.SourceKey{key}); err != nil {
		return err
	}

	return s.mutateBatch(ctx, []schema.SourceKey{key}, func(st *AlertState) {
		st.MatchedCompanyID = companyID
		st.MatchedCompanyName = companyName
	})
}
