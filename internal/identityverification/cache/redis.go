package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"idverify/internal/identityverification/models"
)

// Redis shares cached configurations across instances.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// envelope carries the fields Configuration keeps out of its document form.
type envelope struct {
	TenantID  string          `json:"tenant_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Document  json.RawMessage `json:"document"`
}

func (r *Redis) Get(ctx context.Context, tenantID, verificationType string) (*models.Configuration, bool, error) {
	raw, err := r.client.Get(ctx, key(tenantID, verificationType)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("decode cached configuration: %w", err)
	}
	var cfg models.Configuration
	if err := json.Unmarshal(env.Document, &cfg); err != nil {
		return nil, false, fmt.Errorf("decode cached configuration: %w", err)
	}
	cfg.TenantID = env.TenantID
	cfg.CreatedAt = env.CreatedAt
	cfg.UpdatedAt = env.UpdatedAt
	return &cfg, true, nil
}

func (r *Redis) Set(ctx context.Context, cfg *models.Configuration) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	raw, err := json.Marshal(envelope{
		TenantID:  cfg.TenantID,
		CreatedAt: cfg.CreatedAt,
		UpdatedAt: cfg.UpdatedAt,
		Document:  doc,
	})
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if err := r.client.Set(ctx, key(cfg.TenantID, cfg.Type), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, tenantID, verificationType string) error {
	if err := r.client.Del(ctx, key(tenantID, verificationType)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
