package project

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// ErrWatcherClosed is returned by Watch after Close.
var ErrWatcherClosed = errors.New("project: watcher closed")

const defaultWatchDebounce = 250 * time.Millisecond

// Watcher delivers debounced change notifications for project roots. One
// fsnotify backend serves every root; callers registering the same root share
// its watches and the last cancel tears them down. Directory-only events are
// suppressed, so callbacks fire only once file activity has settled.
//
// fsnotify watches a single directory level, so the watcher adds each
// subdirectory the ignore rules keep and picks up directories created later
// from their create events.
type Watcher struct {
	logger   *logger.Logger
	debounce time.Duration

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	roots  map[string]*rootWatch
	nextID int
	closed bool
	done   chan struct{}
}

type rootWatch struct {
	callbacks map[int]func()
	filter    *Filter
	dirs      map[string]struct{}
	timer     *time.Timer
	lastEvent time.Time
}

// NewWatcher starts the shared event loop. A non-positive debounce selects
// the 250ms default.
func NewWatcher(debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	w := &Watcher{
		logger:   log.WithFields(zap.String("component", "project-watcher")),
		debounce: debounce,
		fsw:      fsw,
		roots:    make(map[string]*rootWatch),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Watch registers fn to run after file activity under root settles. The
// returned cancel is idempotent; once every watcher of a root has cancelled,
// the root's filesystem watches are removed.
func (w *Watcher) Watch(root string, fn func()) (func(), error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWatcherClosed
	}

	rw, ok := w.roots[abs]
	if !ok {
		rw = &rootWatch{
			callbacks: make(map[int]func()),
			filter:    NewFilter(abs, w.logger),
			dirs:      make(map[string]struct{}),
		}
		w.roots[abs] = rw
		w.addTreeLocked(rw, abs, abs)
	}
	id := w.nextID
	w.nextID++
	rw.callbacks[id] = fn

	var once sync.Once
	cancel := func() {
		once.Do(func() { w.unwatch(abs, id) })
	}
	return cancel, nil
}

// Close stops the backend and waits for the event loop to drain. Pending
// debounce timers are cancelled without running their callbacks.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, rw := range w.roots {
		if rw.timer != nil {
			rw.timer.Stop()
		}
	}
	w.roots = make(map[string]*rootWatch)
	err := w.fsw.Close()
	w.mu.Unlock()

	<-w.done
	return err
}

func (w *Watcher) unwatch(root string, id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rw, ok := w.roots[root]
	if !ok {
		return
	}
	delete(rw.callbacks, id)
	if len(rw.callbacks) > 0 {
		return
	}
	if rw.timer != nil {
		rw.timer.Stop()
	}
	for dir := range rw.dirs {
		_ = w.fsw.Remove(dir)
	}
	delete(w.roots, root)
}

// run drains backend events until Close shuts the channels.
func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watch backend error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	for root, rw := range w.roots {
		if !underRoot(root, path) {
			continue
		}
		if _, watched := rw.dirs[path]; watched {
			// A directory we track went away or moved. Drop its watches
			// without waking the callbacks.
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.dropSubtreeLocked(rw, path)
			}
			continue
		}
		if event.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				if !rw.filter.Excluded(relSlash(root, path), true) {
					w.addTreeLocked(rw, root, path)
				}
				continue
			}
		}
		w.bumpLocked(root, rw)
	}
}

// bumpLocked restarts the debounce window for root.
func (w *Watcher) bumpLocked(root string, rw *rootWatch) {
	rw.lastEvent = time.Now()
	if rw.timer == nil {
		rw.timer = time.AfterFunc(w.debounce, func() { w.fire(root) })
		return
	}
	rw.timer.Reset(w.debounce)
}

// fire runs the callbacks for root once events have settled. A timer that had
// already started when a newer event rescheduled it can still get here early;
// the lastEvent check turns that firing into a no-op and the rescheduled
// timer delivers the callbacks instead.
func (w *Watcher) fire(root string) {
	w.mu.Lock()
	rw, ok := w.roots[root]
	if !ok || time.Since(rw.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	callbacks := make([]func(), 0, len(rw.callbacks))
	for _, cb := range rw.callbacks {
		callbacks = append(callbacks, cb)
	}
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// addTreeLocked watches dir and every non-excluded directory beneath it.
func (w *Watcher) addTreeLocked(rw *rootWatch, root, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && rw.filter.Excluded(relSlash(root, path), true) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.WithError(err).Debug("watch add failed", zap.String("path", path))
			return nil
		}
		rw.dirs[path] = struct{}{}
		return nil
	})
}

// dropSubtreeLocked forgets dir and everything watched beneath it.
func (w *Watcher) dropSubtreeLocked(rw *rootWatch, dir string) {
	prefix := dir + string(filepath.Separator)
	for watched := range rw.dirs {
		if watched == dir || strings.HasPrefix(watched, prefix) {
			// Usually already gone from the backend by the time the event
			// arrives.
			_ = w.fsw.Remove(watched)
			delete(rw.dirs, watched)
		}
	}
}

func underRoot(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
