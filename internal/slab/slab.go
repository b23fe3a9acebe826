// Package slab provides a fixed-capacity arena of T addressed by int32 slot
// indices, with O(1) Alloc and Free over an index free list.
package slab

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Nil is the slot index that refers to no slot.
const Nil int32 = -1

// ErrInvalidSize is returned by New for a non-positive or oversized capacity.
var ErrInvalidSize = errors.New("slab: capacity must be in [1, MaxInt32]")

// Pool is a bounded allocator of T slots.
//
// Alloc and Free are safe for concurrent use. The contents of an allocated
// slot belong to whoever allocated it: At gives direct access and the Pool
// does not synchronize it. Free zeroes the slot so stale values are not
// retained.
type Pool[T any] struct {
	mu    sync.Mutex
	slots []T
	free  []int32 // stack of free slot indices
	used  []bool
}

// New allocates a pool with exactly n slots.
func New[T any](n int) (*Pool[T], error) {
	if n <= 0 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, n)
	}
	p := &Pool[T]{
		slots: make([]T, n),
		free:  make([]int32, n),
		used:  make([]bool, n),
	}
	// Lowest index on top of the stack.
	for i := range p.free {
		p.free[i] = int32(n - 1 - i)
	}
	return p, nil
}

// Alloc reserves a slot. It returns false when every slot is in use.
func (p *Pool[T]) Alloc() (int32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	top := len(p.free) - 1
	if top < 0 {
		return Nil, false
	}
	i := p.free[top]
	p.free = p.free[:top]
	p.used[i] = true
	return i, true
}

// Free zeroes slot i and returns it to the pool.
// Freeing a slot that is not allocated panics.
func (p *Pool[T]) Free(i int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || int(i) >= len(p.slots) {
		panic(fmt.Sprintf("slab: free of out-of-range slot %d", i))
	}
	if !p.used[i] {
		panic(fmt.Sprintf("slab: double free of slot %d", i))
	}
	var zero T
	p.slots[i] = zero
	p.used[i] = false
	p.free = append(p.free, i)
}

// At returns a pointer to slot i. The caller must own the slot.
func (p *Pool[T]) At(i int32) *T { return &p.slots[i] }

// Cap returns the fixed number of slots.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// InUse returns the number of allocated slots.
func (p *Pool[T]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}
