package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pavelanni/rollcall/internal/model"
)

const classStatePrefix = "rollcall:class:"

func classStateKey(classID string) string {
	return classStatePrefix + classID
}

// Redis stores class state as JSON values. Redis errors are logged and
// treated as cache misses so a down cache only costs extra queries.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	slog.Info("connected to redis", "addr", addr, "db", db)
	return &Redis{client: client, ttl: ttl}, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, classID string) (*model.ClassState, bool) {
	data, err := r.client.Get(ctx, classStateKey(classID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis get failed", "class_id", classID, "error", err)
		}
		return nil, false
	}
	var state model.ClassState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("discarding undecodable cache entry", "class_id", classID, "error", err)
		r.Invalidate(ctx, classID)
		return nil, false
	}
	return &state, true
}

func (r *Redis) Put(ctx context.Context, state *model.ClassState) {
	data, err := json.Marshal(state)
	if err != nil {
		slog.Warn("encode class state", "class_id", state.Class.ID, "error", err)
		return
	}
	if err := r.client.Set(ctx, classStateKey(state.Class.ID), data, r.ttl).Err(); err != nil {
		slog.Warn("redis set failed", "class_id", state.Class.ID, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, classID string) {
	if err := r.client.Del(ctx, classStateKey(classID)).Err(); err != nil {
		slog.Warn("redis del failed", "class_id", classID, "error", err)
	}
}
