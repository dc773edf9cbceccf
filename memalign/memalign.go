package memalign

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
)

const (
	// Alignment is the byte boundary every buffer starts on (AVX2 width).
	Alignment = 32

	// MaxAllocation caps a single allocation at 1 GiB.
	MaxAllocation = 1 << 30

	// PoisonByte fills buffers that must no longer be read.
	PoisonByte = 0xDB
)

var (
	// ErrInvalidSize indicates a zero or negative allocation size.
	ErrInvalidSize = errors.New("invalid allocation size")

	// ErrTooLarge indicates the request exceeds the allocator's limit.
	ErrTooLarge = errors.New("allocation too large")

	// ErrOutOfBudget indicates a Tracker byte budget is exhausted.
	ErrOutOfBudget = errors.New("allocation budget exhausted")
)

// Allocator hands out aligned buffers and takes them back.
type Allocator interface {
	// Alloc returns a zeroed buffer of exactly size bytes starting on an
	// Alignment boundary.
	Alloc(size int) ([]byte, error)
	// Free returns a buffer obtained from Alloc. The buffer must not be
	// used afterwards.
	Free(buf []byte)
}

// Heap allocates from the Go heap. Free is a no-op; the garbage collector
// reclaims the memory once the last reference is dropped.
type Heap struct{}

// Alloc implements Allocator.
func (Heap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if size > MaxAllocation {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, MaxAllocation)
	}

	raw := make([]byte, size+Alignment-1)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) & (Alignment - 1)); rem != 0 {
		off = Alignment - rem
	}
	return raw[off : off+size : off+size], nil
}

// Free implements Allocator.
func (Heap) Free([]byte) {}

var defaultAllocator Allocator = Heap{}

// Alloc returns an aligned buffer from the default allocator.
func Alloc(size int) ([]byte, error) {
	buf, err := defaultAllocator.Alloc(size)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Alloc",
			"size":     size,
			"error":    err.Error(),
		}).Warn("Aligned allocation failed")
		return nil, err
	}
	return buf, nil
}

// Free releases a buffer obtained from Alloc.
func Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	defaultAllocator.Free(buf)
}

// IsAligned reports whether buf starts on an Alignment boundary.
func IsAligned(buf []byte) bool {
	if cap(buf) == 0 {
		return false
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))&(Alignment-1) == 0
}

// Poison overwrites buf with PoisonByte.
func Poison(buf []byte) {
	for i := range buf {
		buf[i] = PoisonByte
	}
}

// IsPoisoned reports whether every byte of buf equals PoisonByte.
// An empty buffer is not considered poisoned.
func IsPoisoned(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	for _, b := range buf {
		if b != PoisonByte {
			return false
		}
	}
	return true
}

// RoundUp rounds n up to the next multiple of Alignment.
func RoundUp(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
