package pieuvre

// watch.go — re-synchronizing open documents when their files change on disk.

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// DefaultDebounce is how long a file must stay quiet before it is
// re-synchronized.
const DefaultDebounce = 300 * time.Millisecond

// ChangeHandler is called with the path of a file that changed.
type ChangeHandler func(ctx context.Context, path string)

// Watcher watches individual files. Editors often save by renaming a new
// file over the old one, so the parent directory is watched and events are
// filtered by name.
type Watcher struct {
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	log      pslog.Logger

	mu    sync.Mutex
	files map[string]string // absolute path -> path as registered
	dirs  map[string]int    // watched directory -> registered files in it

	done     chan struct{}
	stopOnce sync.Once
}

func NewWatcher(debounce time.Duration, handler ChangeHandler, log pslog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		watcher:  fw,
		handler:  handler,
		debounce: debounce,
		log:      log,
		files:    make(map[string]string),
		dirs:     make(map[string]int),
		done:     make(chan struct{}),
	}, nil
}

// Add starts watching path.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; ok {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = path
	return nil
}

// Remove stops watching path.
func (w *Watcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		_ = w.watcher.Remove(dir)
	}
}

// Run delivers debounced changes until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]time.Time)
	var timer *time.Timer
	var timerC <-chan time.Time

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			path, ok := w.lookup(event.Name)
			if !ok {
				continue
			}
			pending[path] = time.Now()
			arm()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
		case <-timerC:
			timerC = nil
			for path := range pending {
				w.log.Debug("file changed", "path", path)
				w.handler(ctx, path)
			}
			clear(pending)
		}
	}
}

func (w *Watcher) lookup(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.files[abs]
	return path, ok
}

// Stop ends Run and releases the underlying watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
