package dispatch

import (
	"fmt"
	"sync"
)

// registry is an id-keyed table that can be sealed. Once sealed it is only
// read, so lookups after Seal never contend with writers.
type registry[T any] struct {
	mu      sync.RWMutex
	entries [256]T
	bound   [256]bool
	sealed  bool
}

// add binds v to every id, or to none of them.
func (r *registry[T]) add(v T, ids []uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrSealed
	}
	seen := make(map[uint8]struct{}, len(ids))
	for _, id := range ids {
		if r.bound[id] {
			return fmt.Errorf("%w: id %d", ErrDuplicateID, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: id %d listed twice", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		r.entries[id] = v
		r.bound[id] = true
	}
	return nil
}

func (r *registry[T]) lookup(id uint8) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id], r.bound[id]
}

func (r *registry[T]) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *registry[T]) isSealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func (r *registry[T]) ids() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []uint8
	for id, ok := range r.bound {
		if ok {
			out = append(out, uint8(id))
		}
	}
	return out
}
