package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// LoaderFunc produces the page for a key on a cache miss.
type LoaderFunc func(key string) (Page, error)

// Outcome describes how a Loading.Get call was satisfied.
type Outcome struct {
	// The page came from the store.
	Hit bool
	// The call waited for a load started by another caller.
	Collapsed bool
	// The loaded page was written to the store.
	Stored bool
}

type loadResult struct {
	page   Page
	hit    bool
	stored bool
}

// Loading is a memoizing cache on top of a Provider.
// Misses call the loader synchronously; concurrent misses for the same key share one load.
// Failed loads are returned to every waiting caller and are never stored.
// A load that was in flight when its key was purged is returned but not stored.
type Loading struct {
	provider Provider
	ttl      time.Duration
	load     LoaderFunc
	group    singleflight.Group
	log      zerolog.Logger
	now      func() time.Time

	// guards epoch and generations, and orders stores against purges
	mutex       sync.Mutex
	epoch       uint64
	generations map[string]uint64
}

func NewLoading(provider Provider, spec Spec, load LoaderFunc, logger zerolog.Logger) *Loading {
	return &Loading{
		provider:    provider,
		ttl:         spec.ExpireAfterWrite,
		load:        load,
		log:         logger,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

// Get returns the page for key, loading it on a miss.
func (l *Loading) Get(key string) (Page, Outcome, error) {
	if page, ok := l.lookup(key); ok {
		return page, Outcome{Hit: true}, nil
	}
	v, err, shared := l.group.Do(key, func() (interface{}, error) {
		// a flight that finished just before this one may have stored the page
		if page, ok := l.lookup(key); ok {
			return loadResult{page: page, hit: true}, nil
		}
		l.log.Trace().Str("key", key).Msg("Loading page")
		generation := l.generation(key)
		page, err := l.load(key)
		if err != nil {
			return nil, err
		}
		return loadResult{page: page, stored: l.store(key, generation, page)}, nil
	})
	if err != nil {
		return Page{}, Outcome{Collapsed: shared}, err
	}
	res := v.(loadResult)
	return res.page, Outcome{Hit: res.hit, Stored: res.stored, Collapsed: shared}, nil
}

func (l *Loading) lookup(key string) (Page, bool) {
	page, ok, err := l.provider.Get(key)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("Could not read from cache")
		return Page{}, false
	}
	return page, ok
}

// generation changes whenever key is purged, by itself or with other keys.
func (l *Loading) generation(key string) uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.epoch + l.generations[key]
}

func (l *Loading) store(key string, generation uint64, page Page) bool {
	if l.ttl <= 0 {
		return false
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.epoch+l.generations[key] != generation {
		l.log.Trace().Str("key", key).Msg("Purged while loading, not storing")
		return false
	}
	expires := l.now().Add(l.ttl)
	if err := l.provider.Put(key, expires, page); err != nil {
		l.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return false
	}
	l.log.Trace().Str("key", key).Time("expiry", expires).Msg("Cache write")
	return true
}

// Purge removes the entry for key.
// A load already in flight for key is not cancelled.
func (l *Loading) Purge(key string) {
	l.mutex.Lock()
	l.generations[key]++
	l.mutex.Unlock()
	l.purge(key)
}

func (l *Loading) purge(key string) {
	l.group.Forget(key)
	if err := l.provider.Purge(key); err != nil {
		l.log.Error().Err(err).Str("key", key).Msg("Could not purge cache entry")
	}
}

// PurgeAll removes every entry.
// Loads in flight for any key are not stored.
func (l *Loading) PurgeAll() {
	l.PurgeFunc(func(string) bool { return true })
}

// PurgeFunc removes the entries whose key matches.
// Use it instead of PurgeAll when the provider is shared with another cache.
// Loads in flight for any key are not stored, matching or not.
func (l *Loading) PurgeFunc(match func(key string) bool) {
	l.mutex.Lock()
	l.epoch++
	l.mutex.Unlock()
	l.provider.Keys(func(key string) {
		if match(key) {
			l.purge(key)
		}
	})
}

// Sweep runs a loop removing expired entries, one entry at a time,
// until ctx is done. Expired entries are never served anyway;
// sweeping only keeps persistent stores from growing.
func (l *Loading) Sweep(ctx context.Context, interval time.Duration) {
	l.log.Info().Msgf("Starting cache sweep loop with interval %s", interval)
	for ctx.Err() == nil {
		key, expires, err := l.provider.Oldest()
		if err != nil {
			l.log.Error().Err(err).Msg("Could not get oldest entry")
		} else if key != "" && !l.now().Before(expires) {
			l.log.Trace().Str("key", key).Time("expiry", expires).Msg("Sweeping expired entry")
			if err := l.provider.Purge(key); err == nil {
				continue
			}
			l.log.Warn().Str("key", key).Msg("Could not sweep expired entry")
		}
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}
