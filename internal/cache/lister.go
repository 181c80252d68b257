package cache

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"tally/internal/core"
	"tally/internal/records"
)

const recordsKey = "records"

// RecordLister caches the full listing of a record store. Concurrent misses
// share a single call to the store.
type RecordLister struct {
	next  records.RecordLister
	cache *LRUCache[[]core.Record]
	group singleflight.Group
}

var _ records.RecordLister = (*RecordLister)(nil)

func NewRecordLister(next records.RecordLister, ttl time.Duration) *RecordLister {
	return &RecordLister{
		next:  next,
		cache: NewLRUCache[[]core.Record](1, ttl),
	}
}

// List returns a copy of the cached listing, loading it on a miss. Errors
// are not cached.
func (l *RecordLister) List(ctx context.Context) ([]core.Record, error) {
	if recs, ok := l.cache.Get(recordsKey); ok {
		return slices.Clone(recs), nil
	}

	v, err, _ := l.group.Do(recordsKey, func() (any, error) {
		recs, err := l.next.List(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(recordsKey, recs)
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]core.Record)), nil
}

// Invalidate forgets the cached listing. Called after new records are written.
func (l *RecordLister) Invalidate() {
	l.cache.Purge()
}

// CleanExpired implements Cleaner.
func (l *RecordLister) CleanExpired() int {
	return l.cache.CleanExpired()
}
