package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/opd-ai/framecodec/memalign"
)

// cBuffer is a grow-only C allocation. Data handed to C callers must live
// in C memory because the Go collector may move or free Go memory once the
// exported call returns.
type cBuffer struct {
	ptr unsafe.Pointer
	cap int
}

// ensure grows the buffer to hold n bytes and returns it as a Go slice.
func (b *cBuffer) ensure(n int) []byte {
	if n > b.cap {
		p := C.realloc(b.ptr, C.size_t(n))
		if p == nil {
			return nil
		}
		b.ptr = p
		b.cap = n
	}
	if n == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(b.ptr), n)
}

func (b *cBuffer) free() {
	if b.ptr != nil {
		C.free(b.ptr)
	}
	b.ptr = nil
	b.cap = 0
}

// newHandle stores id in a small C allocation that serves as the opaque
// pointer returned to C.
func newHandle(id uintptr) unsafe.Pointer {
	p := C.malloc(C.size_t(unsafe.Sizeof(C.uintptr_t(0))))
	if p == nil {
		return nil
	}
	*(*C.uintptr_t)(p) = C.uintptr_t(id)
	return p
}

// handleID safely extracts the ID from an opaque pointer handle.
func handleID(p unsafe.Pointer) (uintptr, bool) {
	if p == nil {
		return 0, false
	}
	return uintptr(*(*C.uintptr_t)(p)), true
}

func freeHandle(p unsafe.Pointer) {
	if p != nil {
		C.free(p)
	}
}

// cAlloc returns an aligned C allocation, or nil.
func cAlloc(size int) unsafe.Pointer {
	if size <= 0 || size > memalign.MaxAllocation {
		return nil
	}
	var p unsafe.Pointer
	if C.posix_memalign(&p, C.size_t(memalign.Alignment), C.size_t(size)) != 0 {
		return nil
	}
	return p
}

func cFree(p unsafe.Pointer) {
	if p != nil {
		C.free(p)
	}
}

// cCopy returns a new C allocation holding data. The caller frees it.
func cCopy(data []byte) unsafe.Pointer {
	p := cAlloc(max(len(data), 1))
	if p == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(p), len(data)), data)
	return p
}
