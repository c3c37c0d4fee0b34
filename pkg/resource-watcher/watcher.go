package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Invalidator drops whatever it holds for a changed file,
// or for everything below a removed or renamed directory.
type Invalidator interface {
	Invalidate(path string)
	InvalidateTree(dir string)
}

// Watcher watches a resource root recursively and reports changed files.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	target  Invalidator
	log     zerolog.Logger
}

// New watches root and every directory below it.
// Hidden directories are skipped.
func New(root string, target Invalidator, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		root:    filepath.Clean(root),
		target:  target,
		log:     logger,
	}
	if err := w.addRecursive(w.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		w.log.Trace().Str("dir", path).Msg("Watching directory")
		return w.watcher.Add(path)
	})
}

// Run handles file system events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.log.Info().Str("root", w.root).Msg("Watching resource root for changes")
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("Could not watch new directory")
			}
			return
		}
	}
	w.log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Resource changed")
	w.target.Invalidate(event.Name)
	// the path is gone, so it may have been a directory
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.target.InvalidateTree(event.Name)
	}
}
