package registry

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrDuplicate is returned by Insert when a Pair for the given source path
// already exists.
var ErrDuplicate = errors.New("source path already registered")

// ErrNotFound is returned by operations that require an existing Pair.
var ErrNotFound = errors.New("source path not registered")

// Registry is the in-memory set of monitored pairs, keyed by SourcePath.
// SourcePath is unique within the registry: a second Insert for the same
// source is rejected (spec.md §3 invariant). The registry itself never
// garbage-collects entries; Remove is explicit.
type Registry struct {
	mu      sync.RWMutex
	byPath  map[string]*Pair
	inOrder []string // insertion order, for deterministic startup iteration
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byPath: make(map[string]*Pair)}
}

// Insert adds p to the registry. It fails with ErrDuplicate if a Pair with
// the same SourcePath already exists.
func (r *Registry) Insert(p *Pair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPath[p.SourcePath]; exists {
		return errors.Wrapf(ErrDuplicate, "source %q", p.SourcePath)
	}
	r.byPath[p.SourcePath] = p
	r.inOrder = append(r.inOrder, p.SourcePath)
	return nil
}

// Find returns the Pair registered for sourcePath, if any.
func (r *Registry) Find(sourcePath string) (*Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byPath[sourcePath]
	return p, ok
}

// MarkInactive deactivates the pair for sourcePath and releases its watch
// handle, if any. Returns ErrNotFound if no such pair is registered.
func (r *Registry) MarkInactive(sourcePath string) (*Pair, error) {
	p, ok := r.Find(sourcePath)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "source %q", sourcePath)
	}
	p.markInactive()
	return p, nil
}

// Reactivate flips an inactive pair back to active without touching its
// watch handle or counters. Used by the `sync` command, which is only
// accepted while the pair is inactive (spec.md §4.6, §9 open question a).
func (r *Registry) Reactivate(sourcePath string) (*Pair, error) {
	p, ok := r.Find(sourcePath)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "source %q", sourcePath)
	}
	p.mu.Lock()
	p.active = true
	p.mu.Unlock()
	return p, nil
}

// UpdateAfterWorker advances LastSyncTime to now and, on failure,
// increments ErrorCount for the pair identified by sourcePath.
func (r *Registry) UpdateAfterWorker(sourcePath string, success bool) error {
	p, ok := r.Find(sourcePath)
	if !ok {
		return errors.Wrapf(ErrNotFound, "source %q", sourcePath)
	}
	p.recordOutcome(success, time.Now())
	return nil
}

// Remove deletes the pair for sourcePath from the registry entirely. Used
// on shutdown or explicit removal; ordinary cancellation uses MarkInactive
// instead so status queries keep working.
func (r *Registry) Remove(sourcePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPath, sourcePath)
	for i, s := range r.inOrder {
		if s == sourcePath {
			r.inOrder = append(r.inOrder[:i], r.inOrder[i+1:]...)
			break
		}
	}
}

// List returns every registered pair in insertion order.
func (r *Registry) List() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pair, 0, len(r.inOrder))
	for _, s := range r.inOrder {
		if p, ok := r.byPath[s]; ok {
			out = append(out, p)
		}
	}
	return out
}
