// Package cache is the advisory TTL'd layer in front of the conversation
// primary store (§4.5).
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Valkey implements coursesage.Cache using the command-builder style.
type Valkey struct {
	client valkey.Client
	logger *slog.Logger
}

// New constructs a Valkey cache adapter.
func New(client valkey.Client, logger *slog.Logger) *Valkey {
	return &Valkey{client: client, logger: logger.With("component", "cache", "backend", "valkey")}
}

// GetString implements coursesage.Cache.
func (v *Valkey) GetString(ctx context.Context, key string) (string, bool, error) {
	resp := v.client.Do(ctx, v.client.B().Get().Key(key).Build())
	if valkey.IsValkeyNil(resp.Error()) {
		return "", false, nil
	}
	if err := resp.Error(); err != nil {
		return "", false, coursesage.WrapTransient("cache read failed", err)
	}
	value, err := resp.ToString()
	if err != nil {
		return "", false, coursesage.WrapTransient("cache read decode failed", err)
	}
	return value, true, nil
}

// SetString implements coursesage.Cache.
func (v *Valkey) SetString(ctx context.Context, key, value string, ttlSeconds int64) error {
	cmd := v.client.B().Set().Key(key).Value(value).Ex(time.Duration(ttlSeconds) * time.Second).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return coursesage.WrapTransient("cache write failed", err)
	}
	return nil
}

// HashGetAll implements coursesage.Cache.
func (v *Valkey) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	resp := v.client.Do(ctx, v.client.B().Hgetall().Key(key).Build())
	if valkey.IsValkeyNil(resp.Error()) {
		return map[string]string{}, nil
	}
	if err := resp.Error(); err != nil {
		return nil, coursesage.WrapTransient("cache hash read failed", err)
	}
	return resp.AsStrMap()
}

// HashSet implements coursesage.Cache.
func (v *Valkey) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	builder := v.client.B().Hset().Key(key).FieldValue()
	for field, val := range fields {
		builder.FieldValue(field, val)
	}
	if err := v.client.Do(ctx, builder.Build()).Error(); err != nil {
		return coursesage.WrapTransient("cache hash write failed", err)
	}
	return nil
}

// Delete implements coursesage.Cache.
func (v *Valkey) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := v.client.B().Del().Key(keys...).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return coursesage.WrapTransient("cache delete failed", err)
	}
	return nil
}
