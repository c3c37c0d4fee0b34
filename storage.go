package mdassets

import (
	"fmt"

	"github.com/always-cache/markdown-assets/cache"
)

// OpenStorage opens the configured persistent store.
// Pages and stylesheets can share one store since their keys never collide.
// The memory provider returns a nil store, each cache then gets its own memory store.
func OpenStorage(s StorageSettings) (cache.Provider, func() error, error) {
	switch s.Provider {
	case ProviderMemory, "":
		return nil, func() error { return nil }, nil
	case ProviderSQLite:
		store, err := cache.NewSQLiteCache(s.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: sqlite %s: %w", ErrConfiguration, s.Path, err)
		}
		return store, store.Close, nil
	case ProviderLevelDB:
		store, err := cache.NewLevelDBCache(s.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: leveldb %s: %w", ErrConfiguration, s.Path, err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported cache provider %s", ErrConfiguration, s.Provider)
	}
}
