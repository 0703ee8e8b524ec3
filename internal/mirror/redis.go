package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelstack/sentinel-engine/internal/config"
	"github.com/sentinelstack/sentinel-engine/internal/models"
	"github.com/sentinelstack/sentinel-engine/internal/utils"
)

// RedisPublisher mirrors live blocks as TTL'd keys. Keys expire with the
// block itself, so readers never see a stale denial.
type RedisPublisher struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPublisher connects to the configured server and pings it to fail
// fast on bad credentials or connectivity.
func NewRedisPublisher(ctx context.Context, cfg config.MirrorConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("mirror addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, utils.NewAppError("mirror.connect", "ping failed", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sentinel:blocked:"
	}
	return &RedisPublisher{client: client, keyPrefix: prefix}, nil
}

// PublishBlock writes the entry under its source key with the remaining
// block duration as TTL.
func (p *RedisPublisher) PublishBlock(ctx context.Context, entry models.BlockEntry) error {
	ttl := remaining(entry, time.Now())
	if ttl == 0 {
		return nil
	}
	key := p.keyPrefix + entry.SourceID
	if err := p.client.Set(ctx, key, entry.Reason, ttl).Err(); err != nil {
		return utils.NewAppError("mirror.publish", "set "+key, err)
	}
	return nil
}

// PublishUnblock deletes the source key so manual unblocks take effect at
// the edge immediately rather than at TTL expiry.
func (p *RedisPublisher) PublishUnblock(ctx context.Context, sourceID string) error {
	key := p.keyPrefix + sourceID
	if err := p.client.Del(ctx, key).Err(); err != nil {
		return utils.NewAppError("mirror.publish", "del "+key, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
