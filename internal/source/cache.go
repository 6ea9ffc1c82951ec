package source

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/museumatlas/curator/internal/model"
)

// LookupCache is the slice of the store the cache wrapper needs.
type LookupCache interface {
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Cached wraps a Provider with a content-addressed TTL cache. Entries are
// keyed by the source name plus the museum's identity fields, so a renamed
// or moved record naturally misses and refetches.
type Cached struct {
	inner Provider
	cache LookupCache
	ttl   time.Duration
}

// WithCache wraps a provider in the lookup cache.
func WithCache(p Provider, cache LookupCache, ttl time.Duration) *Cached {
	return &Cached{inner: p, cache: cache, ttl: ttl}
}

func (c *Cached) Name() string            { return c.inner.Name() }
func (c *Cached) Trust() model.TrustLevel { return c.inner.Trust() }
func (c *Cached) CostUSD() float64        { return c.inner.CostUSD() }

func (c *Cached) Lookup(ctx context.Context, m *model.Museum) (map[string]model.EnrichedField, error) {
	key := lookupKey(c.inner.Name(), m)

	if data, err := c.cache.GetCachedLookup(ctx, key); err != nil {
		zap.L().Warn("source: cache read failed, falling through",
			zap.String("source", c.inner.Name()), zap.Error(err))
	} else if data != nil {
		var fields map[string]model.EnrichedField
		if err := json.Unmarshal(data, &fields); err == nil {
			zap.L().Debug("source: cache hit",
				zap.String("source", c.inner.Name()), zap.String("museum", m.ID))
			return fields, nil
		}
		zap.L().Warn("source: corrupt cache entry, refetching",
			zap.String("source", c.inner.Name()), zap.String("key", key[:12]))
	}

	fields, err := c.inner.Lookup(ctx, m)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, eris.Wrapf(err, "source: marshal lookup for cache %s", c.inner.Name())
	}
	if err := c.cache.SetCachedLookup(ctx, key, data, c.ttl); err != nil {
		zap.L().Warn("source: cache write failed",
			zap.String("source", c.inner.Name()), zap.Error(err))
	}
	return fields, nil
}

func lookupKey(source string, m *model.Museum) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s",
		source,
		m.ID,
		strings.ToLower(strings.TrimSpace(m.Name)),
		strings.ToLower(strings.TrimSpace(m.City)),
		strings.ToLower(strings.TrimSpace(m.Country)),
	)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h)
}
