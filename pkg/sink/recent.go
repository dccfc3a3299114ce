package sink

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"shieldx-cti/pkg/event"
)

// DefaultRecentSize bounds the in-memory report cache.
const DefaultRecentSize = 4096

// Recent keeps the most recently emitted reports for lookup by event id.
type Recent struct {
	cache *lru.Cache[string, event.Report]
}

// NewRecent returns a cache holding up to size reports.
func NewRecent(size int) *Recent {
	if size <= 0 {
		size = DefaultRecentSize
	}
	cache, _ := lru.New[string, event.Report](size)
	return &Recent{cache: cache}
}

// Name implements Sink.
func (r *Recent) Name() string { return "recent" }

// Emit implements Sink.
func (r *Recent) Emit(_ context.Context, rep event.Report) error {
	r.cache.Add(rep.EventID, rep)
	return nil
}

// Get returns the cached report for eventID.
func (r *Recent) Get(eventID string) (event.Report, bool) {
	return r.cache.Get(eventID)
}

// Len returns the number of cached reports.
func (r *Recent) Len() int { return r.cache.Len() }
