package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/treeprice/catalog-backend/internal/platform/logger"
	"github.com/treeprice/catalog-backend/internal/services"
)

const versionKey = "catalog:version"

// SubtreeCache caches assembled subtree views under a global catalog-version
// key. Writers bump the version instead of hunting down every stale entry, so
// a view cached before any committed mutation is simply never read again and
// ages out via TTL. The entry key doubles as the store token: it is computed
// once at lookup time, so a view assembled before a concurrent version bump
// lands under the old generation instead of masquerading as fresh.
type SubtreeCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

var _ services.SubtreeCache = (*SubtreeCache)(nil)

// NewSubtreeCache connects using REDIS_ADDR; a missing address is not an
// error, the caller just runs uncached.
func NewSubtreeCache(log *logger.Logger, ttl time.Duration) (*SubtreeCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &SubtreeCache{
		log: log.With("service", "RedisSubtreeCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *SubtreeCache) FetchSubtree(ctx context.Context, rootID uuid.UUID) (*services.TreeView, string, bool) {
	key, err := c.entryKey(ctx, rootID)
	if err != nil {
		return nil, "", false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, key, false
	}
	var view services.TreeView
	if err := json.Unmarshal(raw, &view); err != nil {
		c.log.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return nil, key, false
	}
	return &view, key, true
}

func (c *SubtreeCache) StoreSubtree(ctx context.Context, key string, view *services.TreeView) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		c.log.Warn("Failed to encode subtree view for cache", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Failed to store subtree view", "key", key, "error", err)
	}
}

func (c *SubtreeCache) InvalidateAll(ctx context.Context) {
	if err := c.rdb.Incr(ctx, versionKey).Err(); err != nil {
		c.log.Warn("Failed to bump catalog version", "error", err)
	}
}

func (c *SubtreeCache) Close() error {
	return c.rdb.Close()
}

func (c *SubtreeCache) entryKey(ctx context.Context, rootID uuid.UUID) (string, error) {
	version, err := c.rdb.Get(ctx, versionKey).Result()
	if err == goredis.Nil {
		version = "0"
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalog:subtree:%s:%s", version, rootID), nil
}
