package kernels

import (
	"math"
	"sync/atomic"

	"github.com/ViktorB9898/GPU-Programming/device"
)

// Dot computes the inner product of the first n elements of x and y.
// Each thread accumulates a grid-stride partial sum, blocks reduce their
// partials in shared memory by a binary tree, and block leaders combine
// the per-block sums atomically into an accumulator owned by this call,
// so no reset-before-reuse discipline is required of the caller.
//
// Cross-block combination order is non-deterministic, so results may
// differ between runs by normal floating-point rounding.
func Dot(ctx *device.Context, x, y device.DevicePtr, n int, cfg Config) (float64, error) {
	if n < 0 {
		return 0, device.NewInvalidArgError("Dot", "negative length")
	}
	if n == 0 {
		return 0, nil
	}

	cfg = cfg.WithDefaults(n)
	threads := cfg.ThreadsPerBlock
	if threads&(threads-1) != 0 {
		return 0, device.NewLaunchError("Dot", "threads per block must be a power of two", nil)
	}
	gridStride := cfg.Blocks * threads

	xs := view[float64](x, n)
	ys := view[float64](y, n)

	var accBits uint64 // float64 bits, fresh per call

	err := ctx.LaunchCooperative(func(t device.BlockThread, _ ...interface{}) {
		tid := t.ThreadIdx.X
		shared := sharedView[float64](t, threads)

		var sum float64
		for i := t.Global(); i < n; i += gridStride {
			sum += xs[i] * ys[i]
		}
		shared[tid] = sum
		t.Sync()

		// Binary tree reduction, halving the active width each step
		for s := threads >> 1; s > 0; s >>= 1 {
			if tid < s {
				shared[tid] += shared[tid+s]
			}
			t.Sync()
		}

		if tid == 0 {
			atomicAddFloat64(&accBits, shared[0])
		}
	}, device.Dim3{X: cfg.Blocks}, device.Dim3{X: threads}, threads*8)
	if err != nil {
		return 0, err
	}

	if err := ctx.Synchronize(); err != nil {
		return 0, err
	}
	return math.Float64frombits(atomic.LoadUint64(&accBits)), nil
}

// atomicAddFloat64 adds delta to the float64 stored as bits at addr.
func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}
