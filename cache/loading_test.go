package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadingStoresAndHits(t *testing.T) {
	var loads int32
	l := NewLoading(NewMemCache(0), Spec{ExpireAfterWrite: time.Minute}, func(key string) (Page, error) {
		atomic.AddInt32(&loads, 1)
		return testPage("rendered " + key), nil
	}, zerolog.Nop())

	first, outcome, err := l.Get("/a.md")
	if err != nil || outcome.Hit || !outcome.Stored {
		t.Fatalf("First get: outcome %+v, err %v", outcome, err)
	}
	second, outcome, err := l.Get("/a.md")
	if err != nil || !outcome.Hit {
		t.Fatalf("Second get: outcome %+v, err %v", outcome, err)
	}
	if string(first.Bytes) != string(second.Bytes) || first.ETag != second.ETag {
		t.Fatal("Cached page differs from the loaded page")
	}
	if loads != 1 {
		t.Fatalf("Loader called %d times", loads)
	}
}

func TestLoadingCoalescesConcurrentMisses(t *testing.T) {
	var loads int32
	started := make(chan struct{})
	release := make(chan struct{})
	l := NewLoading(NewMemCache(0), Spec{ExpireAfterWrite: time.Minute}, func(key string) (Page, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			close(started)
		}
		<-release
		return testPage("slow"), nil
	}, zerolog.Nop())

	var wg sync.WaitGroup
	etags := make([]string, 5)
	get := func(i int) {
		defer wg.Done()
		page, _, err := l.Get("/slow.md")
		if err != nil {
			t.Errorf("Get: %v", err)
		}
		etags[i] = page.ETag
	}
	wg.Add(1)
	go get(0)
	<-started
	for i := 1; i < len(etags); i++ {
		wg.Add(1)
		go get(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if loads != 1 {
		t.Fatalf("Loader called %d times", loads)
	}
	for _, etag := range etags {
		if etag != etags[0] {
			t.Fatalf("Callers got different pages: %v", etags)
		}
	}
}

func TestLoadingFailureIsNotCached(t *testing.T) {
	fail := true
	var loads int
	l := NewLoading(NewMemCache(0), Spec{ExpireAfterWrite: time.Minute}, func(key string) (Page, error) {
		loads++
		if fail {
			return Page{}, errors.New("template exploded")
		}
		return testPage("ok"), nil
	}, zerolog.Nop())

	if _, _, err := l.Get("/a.md"); err == nil {
		t.Fatal("Expected load error")
	}
	fail = false
	page, outcome, err := l.Get("/a.md")
	if err != nil || outcome.Hit || string(page.Bytes) != "ok" {
		t.Fatalf("Retry: page %q, outcome %+v, err %v", page.Bytes, outcome, err)
	}
	if loads != 2 {
		t.Fatalf("Loader called %d times", loads)
	}
}

func TestLoadingZeroExpiryNeverStores(t *testing.T) {
	var loads int
	l := NewLoading(NewMemCache(0), Spec{}, func(key string) (Page, error) {
		loads++
		return testPage("x"), nil
	}, zerolog.Nop())
	l.Get("/a.md")
	_, outcome, _ := l.Get("/a.md")
	if outcome.Hit || outcome.Stored || loads != 2 {
		t.Fatalf("outcome %+v after %d loads", outcome, loads)
	}
}

func TestLoadingExpiredEntryIsReloaded(t *testing.T) {
	mem := NewMemCache(0)
	now := time.Now()
	mem.now = func() time.Time { return now }
	var loads int
	l := NewLoading(mem, Spec{ExpireAfterWrite: time.Second}, func(key string) (Page, error) {
		loads++
		return testPage("x"), nil
	}, zerolog.Nop())
	l.now = mem.now

	l.Get("/a.md")
	now = now.Add(time.Second)
	if _, outcome, _ := l.Get("/a.md"); outcome.Hit {
		t.Fatal("Expired entry was served")
	}
	if loads != 2 {
		t.Fatalf("Loader called %d times", loads)
	}
}

func TestLoadingPurgeAll(t *testing.T) {
	mem := NewMemCache(0)
	l := NewLoading(mem, Spec{ExpireAfterWrite: time.Minute}, func(key string) (Page, error) {
		return testPage(key), nil
	}, zerolog.Nop())
	l.Get("/a.md")
	l.Get("/b.md")
	l.PurgeAll()
	count := 0
	mem.Keys(func(string) { count++ })
	if count != 0 {
		t.Fatalf("%d entries left after PurgeAll", count)
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	mem := NewMemCache(0)
	mem.Put("/old.md", time.Now().Add(-time.Second), testPage("old"))
	mem.Put("/new.md", time.Now().Add(time.Hour), testPage("new"))
	l := NewLoading(mem, Spec{ExpireAfterWrite: time.Minute}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Sweep(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	keys := []string{}
	mem.Keys(func(key string) { keys = append(keys, key) })
	if len(keys) != 1 || keys[0] != "/new.md" {
		t.Fatalf("Keys after sweep: %v", keys)
	}
}

func TestLoadingConcurrentFailureReachesEveryWaiter(t *testing.T) {
	var loads int32
	var fail atomic.Bool
	fail.Store(true)
	started := make(chan struct{})
	release := make(chan struct{})
	l := NewLoading(NewMemCache(0), Spec{ExpireAfterWrite: time.Minute}, func(key string) (Page, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			close(started)
			<-release
		}
		if fail.Load() {
			return Page{}, errors.New("template exploded")
		}
		return testPage("ok"), nil
	}, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	get := func(i int) {
		defer wg.Done()
		_, _, errs[i] = l.Get("/broken.md")
	}
	wg.Add(1)
	go get(0)
	<-started
	for i := 1; i < len(errs); i++ {
		wg.Add(1)
		go get(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if loads != 1 {
		t.Fatalf("Loader called %d times", loads)
	}
	for i, err := range errs {
		if err == nil || err.Error() != "template exploded" {
			t.Fatalf("Caller %d got error %v", i, err)
		}
	}

	fail.Store(false)
	page, outcome, err := l.Get("/broken.md")
	if err != nil || outcome.Hit || string(page.Bytes) != "ok" {
		t.Fatalf("Retry: page %q, outcome %+v, err %v", page.Bytes, outcome, err)
	}
	if loads != 2 {
		t.Fatalf("Loader called %d times", loads)
	}
}

// purgeDuringLoad purges while the first load of a key is blocked,
// then checks that the next Get sees the changed source.
func purgeDuringLoad(t *testing.T, purge func(l *Loading)) {
	t.Helper()
	var source atomic.Value
	source.Store("old")
	var loads int32
	started := make(chan struct{})
	release := make(chan struct{})
	l := NewLoading(NewMemCache(0), Spec{ExpireAfterWrite: time.Minute}, func(key string) (Page, error) {
		body := source.Load().(string)
		if atomic.AddInt32(&loads, 1) == 1 {
			close(started)
			<-release
		}
		return testPage(body), nil
	}, zerolog.Nop())

	done := make(chan Outcome)
	go func() {
		page, outcome, err := l.Get("/edited.md")
		if err != nil || string(page.Bytes) != "old" {
			t.Errorf("In flight get: page %q, err %v", page.Bytes, err)
		}
		done <- outcome
	}()
	<-started
	source.Store("new")
	purge(l)
	close(release)
	if outcome := <-done; outcome.Stored {
		t.Fatalf("Page loaded before the purge was stored: %+v", outcome)
	}

	page, outcome, err := l.Get("/edited.md")
	if err != nil || outcome.Hit || string(page.Bytes) != "new" {
		t.Fatalf("After purge: page %q, outcome %+v, err %v", page.Bytes, outcome, err)
	}
	if page, outcome, _ = l.Get("/edited.md"); !outcome.Hit || string(page.Bytes) != "new" {
		t.Fatalf("Reloaded page not cached: page %q, outcome %+v", page.Bytes, outcome)
	}
}

func TestLoadingPurgeDuringLoadIsNotStored(t *testing.T) {
	purgeDuringLoad(t, func(l *Loading) { l.Purge("/edited.md") })
}

func TestLoadingPurgeFuncDuringLoadIsNotStored(t *testing.T) {
	purgeDuringLoad(t, func(l *Loading) {
		l.PurgeFunc(func(key string) bool { return strings.HasSuffix(key, ".md") })
	})
}
