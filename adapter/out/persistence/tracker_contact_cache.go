package persistence

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"reply_tracker/core/port/out"
	"reply_tracker/pkg/cache"
	"reply_tracker/pkg/logger"
)

const lenderContactsKey = "lender_contacts"

// CachedLenderContactAdapter puts a Redis read-through cache in front of a
// LenderContactRepository. Cache failures fall back to the delegate.
type CachedLenderContactAdapter struct {
	delegate out.LenderContactRepository
	cache    *cache.RedisCache
	ttl      time.Duration
	loads    singleflight.Group
}

var _ out.LenderContactRepository = (*CachedLenderContactAdapter)(nil)

func NewCachedLenderContactAdapter(delegate out.LenderContactRepository, c *cache.RedisCache, ttl time.Duration) *CachedLenderContactAdapter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedLenderContactAdapter{delegate: delegate, cache: c, ttl: ttl}
}

func (a *CachedLenderContactAdapter) ListContacts(ctx context.Context) (map[string][]string, error) {
	var contacts map[string][]string
	found, err := a.cache.GetJSON(ctx, lenderContactsKey, &contacts)
	if err != nil {
		logger.WithError(err).Warn("lender contact cache read failed")
	}
	if found {
		return contacts, nil
	}

	// concurrent misses share one store read
	v, err, _ := a.loads.Do(lenderContactsKey, func() (any, error) {
		loaded, err := a.delegate.ListContacts(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.cache.SetJSON(ctx, lenderContactsKey, loaded, a.ttl); err != nil {
			logger.WithError(err).Warn("lender contact cache write failed")
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string][]string), nil
}
