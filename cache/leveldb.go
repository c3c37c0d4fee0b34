package cache

import (
	"bytes"
	"errors"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"
)

var entryPrefix = []byte("e:")

type levelDBEntry struct {
	Expires int64 `msgpack:"expires"`
	Page    Page  `msgpack:"page"`
}

// LevelDBCache is a Provider persisting msgpack-encoded pages in a LevelDB directory.
type LevelDBCache struct {
	db  *leveldb.DB
	now func() time.Time
}

func NewLevelDBCache(path string) (LevelDBCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return LevelDBCache{}, err
	}
	return LevelDBCache{db: db, now: time.Now}, nil
}

func entryKey(key string) []byte {
	return append(append([]byte{}, entryPrefix...), key...)
}

func (l LevelDBCache) Get(key string) (Page, bool, error) {
	b, err := l.db.Get(entryKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, err
	}
	var entry levelDBEntry
	if err := msgpack.Unmarshal(b, &entry); err != nil {
		// unreadable entries are dropped rather than served
		return Page{}, false, l.Purge(key)
	}
	if !l.now().Before(time.UnixMilli(entry.Expires)) {
		return Page{}, false, l.Purge(key)
	}
	return entry.Page, true, nil
}

func (l LevelDBCache) Put(key string, expires time.Time, page Page) error {
	b, err := msgpack.Marshal(levelDBEntry{Expires: expires.UnixMilli(), Page: page})
	if err != nil {
		return err
	}
	return l.db.Put(entryKey(key), b, nil)
}

func (l LevelDBCache) Oldest() (string, time.Time, error) {
	it := l.db.NewIterator(util.BytesPrefix(entryPrefix), nil)
	defer it.Release()

	var oldestKey string
	var oldest int64
	for it.Next() {
		var entry levelDBEntry
		if err := msgpack.Unmarshal(it.Value(), &entry); err != nil {
			continue
		}
		if oldestKey == "" || entry.Expires < oldest {
			oldestKey = string(bytes.TrimPrefix(it.Key(), entryPrefix))
			oldest = entry.Expires
		}
	}
	if err := it.Error(); err != nil {
		return "", time.Time{}, err
	}
	if oldestKey == "" {
		return "", time.Time{}, nil
	}
	return oldestKey, time.UnixMilli(oldest), nil
}

func (l LevelDBCache) Purge(key string) error {
	return l.db.Delete(entryKey(key), nil)
}

func (l LevelDBCache) Keys(cb func(string)) {
	it := l.db.NewIterator(util.BytesPrefix(entryPrefix), nil)
	keys := make([]string, 0)
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), entryPrefix)))
	}
	it.Release()
	for _, key := range keys {
		cb(key)
	}
}

func (l LevelDBCache) Close() error {
	return l.db.Close()
}
