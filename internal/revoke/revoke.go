// Package revoke keeps a denylist of access token IDs revoked before their expiry.
package revoke

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blacklist:"

// Store records revoked token IDs.
type Store interface {
	// Revoke denies jti for ttl; ttl <= 0 is a no-op since the token has already expired.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether jti was revoked and has not yet aged out.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Cmdable is the subset of redis.Cmdable used by Redis.
type Cmdable interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis stores revoked IDs as expiring keys.
type Redis struct {
	c Cmdable
}

// NewRedis wraps a redis client.
func NewRedis(c Cmdable) *Redis { return &Redis{c: c} }

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Revoke marks jti revoked for ttl. A non-positive ttl is a no-op.
func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.c.Set(ctx, keyPrefix+jti, "revoked", ttl).Err()
}

// IsRevoked reports whether jti is on the denylist.
func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.c.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Noop never revokes anything. It is used when no Redis address is configured.
type Noop struct{}

// Revoke implements Store.
func (Noop) Revoke(context.Context, string, time.Duration) error { return nil }

// IsRevoked implements Store.
func (Noop) IsRevoked(context.Context, string) (bool, error) { return false, nil }
