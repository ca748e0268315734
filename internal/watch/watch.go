// Package watch reloads catalogs when their files change and hands the new
// catalog to every live binding.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 150 * time.Millisecond

// Loader builds a fresh catalog. A non-nil catalog returned with an error is
// still used; the error is logged.
type Loader func() (*catalog.Catalog, error)

// Watcher reloads catalogs from disk.
type Watcher struct {
	paths    []string
	load     Loader
	resolver *session.Resolver

	// Debounce is the quiet time required before reloading.
	Debounce time.Duration
	// OnReload runs after a successful reload, before the resolver is updated.
	OnReload func(ctx context.Context, cat *catalog.Catalog) error
}

// New watches paths, which may be catalog files or directories of them.
func New(paths []string, load Loader, resolver *session.Resolver) *Watcher {
	return &Watcher{paths: paths, load: load, resolver: resolver, Debounce: DefaultDebounce}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	files, dirs, watched := w.targets()
	for dir := range watched {
		if err := fw.Add(dir); err != nil {
			log.Warnf("[watch] cannot watch %s: %v", dir, err)
			continue
		}
		log.Debugf("[watch] watching %s", dir)
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, files, dirs) {
				continue
			}
			log.Debugf("[watch] %s %s", ev.Op, ev.Name)
			timer.Reset(w.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[watch] error: %v", err)
		case <-timer.C:
			w.Reload(ctx)
		}
	}
}

// Reload loads the catalogs once and publishes them.
func (w *Watcher) Reload(ctx context.Context) {
	cat, err := w.load()
	if cat == nil {
		log.Errorf("[watch] reload failed: %v", err)
		return
	}
	if err != nil {
		log.Warnf("[watch] reloaded with errors: %v", err)
	}
	if w.OnReload != nil {
		if err := w.OnReload(ctx, cat); err != nil {
			log.Errorf("[watch] reload hook failed: %v", err)
		}
	}
	w.resolver.Replace(cat)
}

// targets returns the catalog files and directories to react to, and the
// directories to watch. Files are watched through their directory so that
// editors that save by renaming are noticed.
func (w *Watcher) targets() (files, dirs, watched map[string]bool) {
	files = make(map[string]bool)
	dirs = make(map[string]bool)
	watched = make(map[string]bool)
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dirs[abs] = true
			watched[abs] = true
			continue
		}
		files[abs] = true
		watched[filepath.Dir(abs)] = true
	}
	return files, dirs, watched
}

func relevant(ev fsnotify.Event, files, dirs map[string]bool) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return files[name] || (dirs[filepath.Dir(name)] && catalog.IsCatalogFile(name))
}
