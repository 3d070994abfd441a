package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/repoindex/internal/source"
)

// DefaultDebounce is how long the watcher collects events before syncing
const DefaultDebounce = 500 * time.Millisecond

// Watch keeps the index of a local repository in sync with the filesystem
// until ctx is cancelled. Written and created files are re-indexed, removed
// and renamed ones deleted from the index. Watch does not crawl; run
// IndexFull first to pick up changes made while nothing was watching.
func (idx *Indexer) Watch(ctx context.Context, repoID string, debounce time.Duration) error {
	p, err := idx.provider(repoID)
	if err != nil {
		return err
	}
	local, ok := p.(*source.LocalFS)
	if !ok {
		return fmt.Errorf("repository %s is not on the local filesystem", repoID)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = fw.Close()
	}()

	w := &watcher{
		idx:     idx,
		repoID:  repoID,
		local:   local,
		fw:      fw,
		pending: make(map[string]bool),
		logger:  log.WithField("repo", repoID),
	}
	if err := w.addTree(local.Root(), false); err != nil {
		return err
	}

	w.logger.WithField("root", local.Root()).Info("watching for changes")

	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watcher error")

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

type watcher struct {
	idx    *Indexer
	repoID string
	local  *source.LocalFS
	fw     *fsnotify.Watcher
	logger *log.Entry

	mu      sync.Mutex
	pending map[string]bool
}

// addTree watches dir and every directory below it that a crawl would visit.
// With markFiles the files found are queued for indexing.
func (w *watcher) addTree(dir string, markFiles bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if !markFiles {
				return nil
			}
			if rel, ok := w.relevant(p, false); ok {
				w.mark(rel)
			}
			return nil
		}
		if p != w.local.Root() {
			if _, ok := w.relevant(p, true); !ok {
				return filepath.SkipDir
			}
		}
		if err := w.fw.Add(p); err != nil {
			w.logger.WithError(err).WithField("dir", p).Warn("failed to watch directory")
		}
		return nil
	})
}

// relevant maps an absolute path to its repository path, rejecting paths
// a crawl would never index
func (w *watcher) relevant(abs string, isDir bool) (string, bool) {
	rel, err := w.local.Rel(abs)
	if err != nil || rel == "." {
		return "", false
	}
	if w.local.Ignored(rel, isDir) {
		return "", false
	}
	parts := strings.Split(rel, "/")
	dirs := parts[:len(parts)-1]
	if isDir {
		dirs = parts
	}
	for _, name := range dirs {
		if w.idx.skip[name] {
			return "", false
		}
	}
	if isDir {
		return rel, true
	}
	return rel, w.idx.exts[strings.ToLower(path.Ext(rel))]
}

func (w *watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, ok := w.relevant(event.Name, true); ok {
				// files written before the watch was added are picked up by the walk
				_ = w.addTree(event.Name, true)
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if rel, ok := w.relevant(event.Name, false); ok {
		w.mark(rel)
	}
}

func (w *watcher) mark(rel string) {
	w.mu.Lock()
	w.pending[rel] = true
	w.mu.Unlock()
}

// flush syncs every pending path: files that still exist are re-indexed,
// the others deleted
func (w *watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	var changed, removed []string
	for rel := range batch {
		info, err := os.Stat(filepath.Join(w.local.Root(), filepath.FromSlash(rel)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			removed = append(removed, rel)
		case err != nil:
			w.logger.WithError(err).WithField("path", rel).Warn("failed to stat changed file")
		case info.Mode().IsRegular() && info.Size() <= w.idx.config.MaxFileSize:
			changed = append(changed, rel)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)

	if len(removed) > 0 {
		if err := w.idx.DeleteFiles(ctx, w.repoID, removed); err != nil {
			w.logger.WithError(err).Warn("failed to delete removed files")
		}
	}
	if len(changed) > 0 {
		if _, err := w.idx.IndexFiles(ctx, w.repoID, changed); err != nil {
			w.logger.WithError(err).Warn("failed to index changed files")
		}
	}
}
