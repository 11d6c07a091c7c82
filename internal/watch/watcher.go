package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Op describes what happened to a watched file.
type Op int

const (
	Created Op = iota
	Modified
	Removed
)

// Event reports a working-tree change for a regular file, with the path
// relative to the repository root.
type Event struct {
	Path string
	Op   Op
}

// Watcher observes the working tree below a repository root and emits
// events for file creates, writes, and removes. Front-ends consume the
// channel to refresh status views; the engine itself never depends on
// it.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	ignored map[string]bool
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New starts watching root recursively. controlDir is the repository
// control directory name and is always ignored.
func New(root, controlDir string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		watcher: fsw,
		events:  make(chan Event, 64),
		ignored: map[string]bool{
			controlDir:     true,
			".git":         true,
			"node_modules": true,
			"vendor":       true,
			"dist":         true,
			"build":        true,
		},
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events returns the event channel. It is closed when the watcher is
// closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watch loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for rel != "." && rel != "" {
		if w.ignored[filepath.Base(rel)] {
			return true
		}
		rel = filepath.Dir(rel)
	}
	return false
}

func (w *Watcher) loop() {
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.shouldIgnore(ev.Name) {
		return
	}

	// New directories get added to the watch set.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watching new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}

	var op Op
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = Created
	case ev.Op.Has(fsnotify.Write):
		op = Modified
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = Removed
	default:
		return
	}

	select {
	case w.events <- Event{Path: rel, Op: op}:
	case <-w.done:
	}
}
