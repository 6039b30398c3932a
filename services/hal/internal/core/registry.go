package core

import (
	"fmt"
	"sync"

	"robohal-go/errcode"
)

// Registry owns device instances keyed by board id in insertion order.
// There is no removal.
type Registry[T any] struct {
	capacity int

	build sync.Mutex // serialises RegisterOrGet

	mu    sync.RWMutex
	items map[uint8]T
	order []uint8
}

// NewRegistry returns a registry that accepts ids below capacity (at most 256).
func NewRegistry[T any](capacity int) *Registry[T] {
	if capacity > 256 {
		capacity = 256
	}
	return &Registry[T]{capacity: capacity, items: map[uint8]T{}}
}

// RegisterOrGet makes ids [0, count) present. Ids already registered are
// left alone; missing ids are built in ascending order and inserted only if
// build succeeds. The first failure is returned at once and ids inserted
// before it stay registered. Ids at or past capacity fail with resource_error.
func (r *Registry[T]) RegisterOrGet(count int, build func(id uint8) (T, error)) error {
	const op = "register"
	if count < 0 {
		return errcode.New(errcode.Configuration, op, fmt.Sprintf("negative count %d", count))
	}
	r.build.Lock()
	defer r.build.Unlock()

	for i := 0; i < count; i++ {
		if i >= r.capacity {
			return errcode.New(errcode.Resource, op, fmt.Sprintf("id %d past capacity %d", i, r.capacity))
		}
		id := uint8(i)
		if r.has(id) {
			continue
		}
		v, err := build(id)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.items[id] = v
		r.order = append(r.order, id)
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry[T]) has(id uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok
}

// Find returns the instance registered under id or not_found.
func (r *Registry[T]) Find(id uint8) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		var zero T
		return zero, errcode.New(errcode.NotFound, "find", fmt.Sprintf("board %d", id))
	}
	return v, nil
}

// IDs returns the registered ids in insertion order.
func (r *Registry[T]) IDs() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uint8(nil), r.order...)
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Each calls fn for every instance in insertion order, stopping when fn
// returns false. The registry may grow while Each runs; new ids are not
// visited.
func (r *Registry[T]) Each(fn func(id uint8, v T) bool) {
	for _, id := range r.IDs() {
		r.mu.RLock()
		v := r.items[id]
		r.mu.RUnlock()
		if !fn(id, v) {
			return
		}
	}
}
