// Package markers keeps per-marker animation state in a fixed-size arena keyed by
// stable node ids.
package markers

import (
	"errors"
)

var ErrArenaFull = errors.New("marker arena is full")

// DefaultCapacity fits a dense city viewport.
const DefaultCapacity = 1024

// Handle is the animation state of one marker.
type Handle struct {
	ID         string  `json:"id"`
	Selected   bool    `json:"selected"`
	Scale      float64 `json:"scale"`
	Generation uint64  `json:"generation"` // bumped every time the slot is reused
}

type slot struct {
	handle Handle
	used   bool
}

// Arena hands out handles lazily and frees them when their node disappears.
type Arena struct {
	slots []slot
	index map[string]int
	free  []int
	next  int // slots at or above next have never been used
	gen   uint64
}

func NewArena(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arena{
		slots: make([]slot, capacity),
		index: make(map[string]int, capacity),
		free:  make([]int, 0, capacity),
	}
}

// Cap returns the number of slots.
func (a *Arena) Cap() int {
	return len(a.slots)
}

// Len returns the number of live handles.
func (a *Arena) Len() int {
	return len(a.index)
}

// Acquire returns the handle for id, allocating a slot on first use.
func (a *Arena) Acquire(id string) (*Handle, error) {
	if i, ok := a.index[id]; ok {
		return &a.slots[i].handle, nil
	}

	i, ok := a.nextSlot()
	if !ok {
		return nil, ErrArenaFull
	}
	a.gen++
	a.slots[i] = slot{
		handle: Handle{ID: id, Scale: 1, Generation: a.gen},
		used:   true,
	}
	a.index[id] = i
	return &a.slots[i].handle, nil
}

// Get returns the live handle for id.
func (a *Arena) Get(id string) (*Handle, bool) {
	i, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return &a.slots[i].handle, true
}

// Retain frees every handle whose id is not in keep and returns how many were freed.
func (a *Arena) Retain(keep map[string]struct{}) int {
	evicted := 0
	for id, i := range a.index {
		if _, ok := keep[id]; ok {
			continue
		}
		a.slots[i] = slot{}
		a.free = append(a.free, i)
		delete(a.index, id)
		evicted++
	}
	return evicted
}

func (a *Arena) nextSlot() (int, bool) {
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		return i, true
	}
	if a.next < len(a.slots) {
		a.next++
		return a.next - 1, true
	}
	return 0, false
}
