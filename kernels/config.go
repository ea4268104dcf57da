package kernels

import (
	"runtime"
	"unsafe"

	"github.com/ViktorB9898/GPU-Programming/device"
)

// Config controls the block/thread partitioning of a kernel launch.
// The zero value selects defaults based on the problem size and the
// number of CPU cores. Partitioning affects performance only, never
// results.
type Config struct {
	// Blocks is the number of thread blocks. For ExclusiveScan it must
	// not exceed device.MaxThreadsPerBlock, since the cross-block carry
	// pass runs as a single block with one thread per carry entry.
	Blocks int

	// ThreadsPerBlock is the number of threads per block, at most
	// device.MaxThreadsPerBlock. Dot additionally requires a power of
	// two for its tree reduction.
	ThreadsPerBlock int
}

// WithDefaults fills unset fields for a problem of n elements.
func (c Config) WithDefaults(n int) Config {
	if c.ThreadsPerBlock <= 0 {
		c.ThreadsPerBlock = device.DefaultBlockSize
	}
	if c.Blocks <= 0 {
		c.Blocks = (n + c.ThreadsPerBlock - 1) / c.ThreadsPerBlock
		if maxBlocks := runtime.NumCPU() * device.DefaultGridMultiplier; c.Blocks > maxBlocks {
			c.Blocks = maxBlocks
		}
		// Defaults stay within the scan's carry-pass limit.
		if c.Blocks > device.MaxThreadsPerBlock {
			c.Blocks = device.MaxThreadsPerBlock
		}
		if c.Blocks < 1 {
			c.Blocks = 1
		}
	}
	return c
}

// scalar constrains the element types kernels operate on.
type scalar interface {
	~int32 | ~float64
}

// view reinterprets device memory as a typed slice of n elements.
func view[T scalar](d device.DevicePtr, n int) []T {
	if n == 0 {
		return nil
	}
	b := d.Byte()
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// sharedView reinterprets a block's shared memory as a typed slice.
func sharedView[T scalar](t device.BlockThread, n int) []T {
	return view[T](t.Shared(), n)
}
