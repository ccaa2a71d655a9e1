package cache

import (
	"context"
	"time"

	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/logging"
	"golang.org/x/sync/singleflight"
)

const catalogKey = "users:all"

// Catalog caches the user list of another UserCatalog. Concurrent misses
// share one load.
type Catalog struct {
	next   chat.UserCatalog
	cache  Cacher
	ttl    time.Duration
	logger logging.Logger
	group  singleflight.Group
}

func NewCatalog(next chat.UserCatalog, cache Cacher, ttl time.Duration, logger logging.Logger) *Catalog {
	return &Catalog{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *Catalog) AllUsernames(ctx context.Context) ([]string, error) {
	var names []string
	hit, err := c.cache.Get(ctx, catalogKey, &names)
	if err != nil {
		c.logger.Warn(ctx, "catalog cache read failed", "error", err)
	}
	if hit {
		return names, nil
	}

	v, err, _ := c.group.Do(catalogKey, func() (any, error) {
		names, err := c.next.AllUsernames(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.SetWithTTL(ctx, catalogKey, names, c.ttl); err != nil {
			c.logger.Warn(ctx, "catalog cache write failed", "error", err)
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate drops the cached list. Called after a registration.
func (c *Catalog) Invalidate(ctx context.Context) {
	if err := c.cache.Delete(ctx, catalogKey); err != nil {
		c.logger.Warn(ctx, "catalog cache invalidate failed", "error", err)
	}
}
