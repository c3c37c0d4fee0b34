package cache

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Provider is an interface for a page store.
// It stores and retrieves rendered pages under a resource locator key,
// and keeps track of the expiration time of each entry.
//
// Implementations must be thread-safe!
type Provider interface {
	// Get returns the stored page for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// If the entry has expired, the boolean must be false.
	// (In this case, the provider should also purge the entry.)
	Get(key string) (Page, bool, error)
	// Put stores the given page under the given key.
	// It also sets an expiration time for the entry.
	Put(key string, expires time.Time, page Page) error
	// Oldest returns the key and expiration time of the entry expiring first.
	// An empty key means the store is empty.
	Oldest() (string, time.Time, error)
	// Purge removes the entry for the given key.
	Purge(key string) error
	// Keys calls the given callback for each key
	Keys(cb func(string))
}

type memCacheEntry struct {
	expires time.Time
	page    Page
}

// MemCache is an in-process Provider.
// A positive maxSize bounds the number of entries; when full, the entry expiring first is evicted.
type MemCache struct {
	mutex   *sync.RWMutex
	db      map[string]memCacheEntry
	maxSize int
	now     func() time.Time
}

func NewMemCache(maxSize int) MemCache {
	return MemCache{
		mutex:   &sync.RWMutex{},
		db:      make(map[string]memCacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (m MemCache) Get(key string) (Page, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return Page{}, false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.db, key)
		return Page{}, false, nil
	}
	return entry.page, true, nil
}

func (m MemCache) Put(key string, expires time.Time, page Page) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.db[key]; !exists && m.maxSize > 0 {
		for len(m.db) >= m.maxSize {
			oldest, _ := m.oldestLocked()
			delete(m.db, oldest)
		}
	}
	m.db[key] = memCacheEntry{expires, page}
	return nil
}

func (m MemCache) Oldest() (string, time.Time, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	key, expires := m.oldestLocked()
	return key, expires, nil
}

func (m MemCache) oldestLocked() (string, time.Time) {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range m.db {
		if oldestKey == "" || entry.expires.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expires
		}
	}
	return oldestKey, oldestTime
}

func (m MemCache) Purge(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m MemCache) Keys(cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	// callbacks may purge, so they run outside the lock
	for _, key := range keys {
		cb(key)
	}
}

// SQLiteCache is a Provider persisting pages in a SQLite database file.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	now        func() time.Time
}

// NewSQLiteCache opens (or creates) the database at filename.
// Use "file::memory:?cache=shared" for an in-memory database.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			last_modified INTEGER,
			etag TEXT,
			mime_type TEXT,
			bytes BLOB
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON pages (expires)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, err
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
		now:        time.Now,
	}, nil
}

func (s SQLiteCache) Get(key string) (Page, bool, error) {
	var expires, lastModified int64
	var page Page
	err := s.db.QueryRow(
		"SELECT expires, last_modified, etag, mime_type, bytes FROM pages WHERE key = ?", key,
	).Scan(&expires, &lastModified, &page.ETag, &page.MimeType, &page.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, err
	}
	if !s.now().Before(time.UnixMilli(expires)) {
		return Page{}, false, s.Purge(key)
	}
	page.LastModified = time.Unix(lastModified, 0).UTC()
	return page, true, nil
}

func (s SQLiteCache) Put(key string, expires time.Time, page Page) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pages (key, expires, last_modified, etag, mime_type, bytes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key, expires.UnixMilli(), page.LastModified.Unix(), page.ETag, page.MimeType, page.Bytes,
	)
	return err
}

func (s SQLiteCache) Oldest() (string, time.Time, error) {
	var key string
	var expires int64
	err := s.db.QueryRow("SELECT key, expires FROM pages ORDER BY expires ASC LIMIT 1").Scan(&key, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return key, time.UnixMilli(expires), nil
}

func (s SQLiteCache) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM pages WHERE key = ?", key)
	return err
}

func (s SQLiteCache) Keys(cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM pages")
	if err != nil {
		return
	}
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			break
		}
		keys = append(keys, key)
	}
	rows.Close()
	for _, key := range keys {
		cb(key)
	}
}

// Close closes the underlying database.
func (s SQLiteCache) Close() error {
	return s.db.Close()
}
