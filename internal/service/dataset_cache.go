package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/unclebandit/certificate-service/internal/metrics"
	"github.com/unclebandit/certificate-service/internal/tabular"
)

// DatasetCache keeps decoded tables so runs and campaigns do not re-parse
// legacy text on every lookup. Cached tables are shared and must not be
// mutated.
type DatasetCache struct {
	cache *expirable.LRU[uuid.UUID, *tabular.Table]
}

func NewDatasetCache(size int, ttl time.Duration) *DatasetCache {
	return &DatasetCache{cache: expirable.NewLRU[uuid.UUID, *tabular.Table](size, nil, ttl)}
}

func (c *DatasetCache) Get(id uuid.UUID) (*tabular.Table, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.cache.Get(id)
	if ok {
		metrics.DatasetCacheLookups.WithLabelValues("hit").Inc()
		return t, true
	}
	metrics.DatasetCacheLookups.WithLabelValues("miss").Inc()
	return nil, false
}

func (c *DatasetCache) Set(id uuid.UUID, t *tabular.Table) {
	if c == nil {
		return
	}
	c.cache.Add(id, t)
}

func (c *DatasetCache) Invalidate(id uuid.UUID) {
	if c == nil {
		return
	}
	c.cache.Remove(id)
}
