// Package memalign provides aligned byte buffers for pixel and bitstream data.
//
// Vectorised colour conversion and compression kernels expect every plane
// to start on a 32-byte boundary. The package-level Alloc and Free pair is
// the general-purpose entry point and is independent of any codec context:
//
//	buf, err := memalign.Alloc(1920 * 1080)
//	if err != nil {
//	    return err
//	}
//	defer memalign.Free(buf)
//
// # Allocators
//
// Components that own buffers accept an Allocator so that ownership rules
// can be verified. Heap is the production allocator. Tracker wraps another
// allocator and records every live buffer:
//
//	tracker := memalign.NewTracker(memalign.Heap{})
//	// ... run the pipeline ...
//	if tracker.Outstanding() != 0 {
//	    // something leaked a buffer
//	}
//
// Tracker can also poison buffers on Free and refuse allocations beyond a
// byte budget, which lets tests observe use-after-release and allocation
// exhaustion deterministically.
//
// # Thread Safety
//
// Heap is stateless. Tracker is safe for concurrent use.
package memalign
