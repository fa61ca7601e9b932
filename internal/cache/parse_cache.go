package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "dap:parse:"
	DefaultTTL = 24 * time.Hour
)

// Parser is the document parser being cached.
type Parser interface {
	Parse(ctx context.Context, buf []byte, ov *dap.Overrides) (*dap.Payload, error)
}

// ParseCache memoizes successful parses in Redis, keyed by the document and
// the overrides it was parsed with. Redis failures degrade to a direct parse.
type ParseCache struct {
	next   Parser
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewParseCache(next Parser, client *redis.Client, ttl time.Duration, log *logger.Logger) *ParseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ParseCache{next: next, client: client, ttl: ttl, logger: log}
}

func (c *ParseCache) Parse(ctx context.Context, buf []byte, ov *dap.Overrides) (*dap.Payload, error) {
	const component = "ParseCache"
	key := Key(buf, ov)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var payload dap.Payload
		if err := json.Unmarshal(raw, &payload); err == nil {
			c.logger.Debug(component, "Cache hit: key=%s", key)
			return &payload, nil
		}
		c.logger.Warn(component, "Discarding unreadable cache entry: key=%s", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn(component, "Cache lookup failed: err=%v", err)
	}

	payload, err := c.next.Parse(ctx, buf, ov)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(payload); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn(component, "Cache store failed: err=%v", err)
		}
	}
	return payload, nil
}

// Key is the cache key of a document parsed with the given overrides.
func Key(buf []byte, ov *dap.Overrides) string {
	h := sha256.New()
	h.Write(buf)
	if ov != nil {
		if b, err := json.Marshal(ov); err == nil {
			h.Write([]byte{0})
			h.Write(b)
		}
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
