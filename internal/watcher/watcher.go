// Package watcher notices edits to template directories so cached template
// indexes can be dropped.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the Watcher waits for changes to settle
// before signalling.
const DefaultDebounce = 200 * time.Millisecond

// Config says what a Watcher watches.
type Config struct {
	// Dirs are watched recursively. Directories created later are
	// picked up as they appear.
	Dirs []string

	// Extensions limits which files count as templates, like ".html".
	// Empty means every file.
	Extensions []string

	// Debounce coalesces bursts of events into one signal.
	Debounce time.Duration

	// Logger receives errors from the underlying watcher. Nil discards
	// them.
	Logger *slog.Logger
}

// Watcher signals when a template under its directories changes.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	dirs       []string
	extensions []string
	debounce   time.Duration
	log        *slog.Logger
	onChange   chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	stopErr    error
}

// New returns a Watcher for cfg. Nothing is watched until Start is called.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		fsWatcher:  fsw,
		dirs:       cfg.Dirs,
		extensions: cfg.Extensions,
		debounce:   debounce,
		log:        log,
		onChange:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start adds every configured directory and returns a channel that
// receives a value after templates change. Signals aren't queued: a burst
// of changes before the receiver catches up is one signal.
func (w *Watcher) Start() (<-chan struct{}, error) {
	for _, dir := range w.dirs {
		if err := w.addTree(dir); err != nil {
			return nil, err
		}
	}
	go w.loop()
	return w.onChange, nil
}

// Stop ends the watch and closes the underlying watcher. Calls after the
// first return the first call's error.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.stopErr = w.fsWatcher.Close()
	})
	return w.stopErr
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error walking %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("error watching directory %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("error watching new directory", "dir", event.Name, "error", err)
					}
					// files may have landed in it before it was watched
					fire = w.reset(&timer)
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			fire = w.reset(&timer)

		case <-fire:
			fire = nil
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("error watching templates", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reset(timer **time.Timer) <-chan time.Time {
	if *timer == nil {
		*timer = time.NewTimer(w.debounce)
	} else {
		(*timer).Reset(w.debounce)
	}
	return (*timer).C
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	// editor swap and backup files
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, filepath.Ext(base))
}
