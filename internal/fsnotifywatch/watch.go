// Package fsnotifywatch wraps fsnotify into the single, non-recursive
// per-pair watch the FSS event supervisor (C5) needs: one inotify watch
// descriptor per registered pair's source directory, translating raw
// CREATE/WRITE/REMOVE/RENAME events into the three change kinds spec.md §4.5
// defines (ADDED, MODIFIED, DELETED).
package fsnotifywatch

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Kind is the normalized change kind an Event reports.
type Kind string

// The three change kinds the event supervisor dispatches to a worker.
const (
	Added    Kind = "ADDED"
	Modified Kind = "MODIFIED"
	Deleted  Kind = "DELETED"
)

// Event is one normalized filesystem change under a watched directory.
type Event struct {
	Dir      string // the pair's source directory being watched
	Filename string // base name of the changed entry
	Kind     Kind
}

// Watcher multiplexes fsnotify's raw channel into a normalized Event
// channel, and tracks which source directory owns each inotify watch so
// Unwatch can release exactly one pair without disturbing the others.
type Watcher struct {
	fw *fsnotify.Watcher

	events chan Event
	errors chan error

	mu   sync.Mutex
	dirs map[string]bool // currently watched directories
}

// New creates a Watcher and starts its translation goroutine.
func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	w := &Watcher{
		fw:     fw,
		events: make(chan Event, 64),
		errors: make(chan error, 8),
		dirs:   make(map[string]bool),
	}
	go w.loop()
	return w, nil
}

// Watch adds a non-recursive watch on dir. Calling Watch on an
// already-watched dir is a no-op, matching inotify_add_watch's own
// idempotence (spec.md §3's one-watch-per-active-pair invariant).
func (w *Watcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirs[dir] {
		return nil
	}
	if err := w.fw.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %q", dir)
	}
	w.dirs[dir] = true
	return nil
}

// Unwatch releases the watch on dir, if any.
func (w *Watcher) Unwatch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		return nil
	}
	delete(w.dirs, dir)
	if err := w.fw.Remove(dir); err != nil {
		return errors.Wrapf(err, "unwatch %q", dir)
	}
	return nil
}

// Events returns the channel of normalized change events. The event
// supervisor's select loop reads from this directly (spec.md §4.5).
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watcher-internal errors (e.g. a watched
// directory removed out from under the watcher).
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close shuts down the underlying fsnotify watcher and its translation
// goroutine.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)
	defer close(w.errors)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// dispatch maps one raw fsnotify.Event onto a normalized Event. A single
// raw event can carry more than one bit (e.g. Write|Chmod); precedence
// follows the lifecycle order a file actually goes through: a removal or
// rename always supersedes a write, and a create always wins over a stray
// chmod bit some platforms attach to it.
func (w *Watcher) dispatch(ev fsnotify.Event) {
	dir, filename := filepath.Split(ev.Name)
	dir = filepath.Clean(dir)

	var kind Kind
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = Deleted
	case ev.Has(fsnotify.Create):
		kind = Added
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		kind = Modified
	default:
		return
	}

	select {
	case w.events <- Event{Dir: dir, Filename: filename, Kind: kind}:
	default:
		// Event channel is saturated; the supervisor will catch up with the
		// filesystem's true state on the next FULL job rather than block the
		// watcher goroutine indefinitely.
	}
}
