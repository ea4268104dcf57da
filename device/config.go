// Package device configuration constants
package device

// Thread and block dimensions
const (
	// Default block size for kernels
	DefaultBlockSize = 256

	// Maximum threads per block (CUDA compatibility). This is also the
	// ceiling on the number of blocks a multi-block scan may use, since
	// the cross-block carry pass runs as a single block with one thread
	// per carry entry.
	MaxThreadsPerBlock = 1024

	// Default grid size multiplier for grid-stride kernels
	DefaultGridMultiplier = 4
)

// Memory pool parameters
const (
	// Memory alignment for allocations (cache line size)
	MemoryAlignment = 64

	// Reported total memory when the OS query is unavailable
	defaultSystemMemory = 16 * 1024 * 1024 * 1024 // 16GB
)

// Numerical constants
const (
	// Machine epsilon for float64
	Float64Epsilon = 2.220446049250313e-16
)
