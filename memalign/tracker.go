package memalign

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithPoisonOnFree makes Free overwrite buffers with PoisonByte.
func WithPoisonOnFree() TrackerOption {
	return func(t *Tracker) {
		t.poison = true
	}
}

// WithBudget limits the number of live bytes. Allocations that would exceed
// it fail with ErrOutOfBudget.
func WithBudget(bytes int) TrackerOption {
	return func(t *Tracker) {
		t.budget = bytes
	}
}

// Tracker is an Allocator that records every live buffer. It is used to
// verify that ownership hand-offs neither leak nor double-free.
type Tracker struct {
	mu     sync.Mutex
	parent Allocator
	live   map[uintptr]int
	poison bool
	budget int

	liveBytes   int
	allocs      uint64
	frees       uint64
	doubleFrees uint64
}

// NewTracker wraps parent. A nil parent means Heap.
func NewTracker(parent Allocator, opts ...TrackerOption) *Tracker {
	if parent == nil {
		parent = Heap{}
	}
	t := &Tracker{
		parent: parent,
		live:   make(map[uintptr]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Alloc implements Allocator.
func (t *Tracker) Alloc(size int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.budget > 0 && t.liveBytes+size > t.budget {
		return nil, fmt.Errorf("%w: %d live + %d requested > %d", ErrOutOfBudget, t.liveBytes, size, t.budget)
	}

	buf, err := t.parent.Alloc(size)
	if err != nil {
		return nil, err
	}

	t.live[key(buf)] = size
	t.liveBytes += size
	t.allocs++
	return buf, nil
}

// Free implements Allocator. Freeing a buffer the tracker does not know
// about is counted as a double free and otherwise ignored.
func (t *Tracker) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(buf)
	size, ok := t.live[k]
	if !ok {
		t.doubleFrees++
		logrus.WithFields(logrus.Fields{
			"function": "Tracker.Free",
			"size":     len(buf),
		}).Error("Free of unknown or already released buffer")
		return
	}

	delete(t.live, k)
	t.liveBytes -= size
	t.frees++
	if t.poison {
		Poison(buf[:size])
	}
	t.parent.Free(buf)
}

// Outstanding returns the number of live buffers.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// LiveBytes returns the number of bytes currently allocated.
func (t *Tracker) LiveBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveBytes
}

// Allocs returns the total number of successful allocations.
func (t *Tracker) Allocs() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocs
}

// Frees returns the total number of successful frees.
func (t *Tracker) Frees() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frees
}

// DoubleFrees returns how many times Free was called with a buffer that was
// not live.
func (t *Tracker) DoubleFrees() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doubleFrees
}

func key(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}
