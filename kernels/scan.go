package kernels

import (
	"unsafe"

	"github.com/ViktorB9898/GPU-Programming/device"
)

// ExclusiveScan computes the exclusive prefix sum of the first n float64
// elements of in into out: out[i] = in[0] + ... + in[i-1], out[0] = 0.
// in and out must each hold at least n elements and must not alias.
// The call returns after the result is fully visible.
//
// The scan runs in three passes: a per-block local scan that records each
// block's total in a carries array, an exclusive scan of the carries as a
// single block, and a broadcast adding each block's carry to its window.
// cfg.Blocks must not exceed device.MaxThreadsPerBlock; this is a
// documented limit, not a checked one, because the carry pass uses one
// thread per block.
func ExclusiveScan(ctx *device.Context, in, out device.DevicePtr, n int, cfg Config) error {
	return exclusiveScan[float64](ctx, in, out, n, cfg)
}

// ExclusiveScanInt32 is ExclusiveScan over int32 elements. The stencil
// assembler uses it to turn per-row nonzero counts into row offsets.
func ExclusiveScanInt32(ctx *device.Context, in, out device.DevicePtr, n int, cfg Config) error {
	return exclusiveScan[int32](ctx, in, out, n, cfg)
}

func exclusiveScan[T scalar](ctx *device.Context, in, out device.DevicePtr, n int, cfg Config) error {
	if n < 0 {
		return device.NewInvalidArgError("ExclusiveScan", "negative length")
	}
	if n == 0 {
		return nil
	}

	cfg = cfg.WithDefaults(n)
	blocks := cfg.Blocks
	threads := cfg.ThreadsPerBlock

	elemSize := int(unsafe.Sizeof(*new(T)))
	carries, err := ctx.Malloc(blocks * elemSize)
	if err != nil {
		return err
	}

	ins := view[T](in, n)
	outs := view[T](out, n)
	car := view[T](carries, blocks)

	grid := device.Dim3{X: blocks}
	block := device.Dim3{X: threads}

	// Pass 1: local scans, one contiguous window per block.
	err = ctx.LaunchCooperative(func(t device.BlockThread, _ ...interface{}) {
		scanBlock(t, ins, outs, car, n)
	}, grid, block, threads*elemSize)

	// Pass 2: exclusive scan of the carries, a single block with one
	// thread per carry entry.
	if err == nil {
		err = ctx.LaunchCooperative(func(t device.BlockThread, _ ...interface{}) {
			scanCarries(t, car)
		}, device.Dim3{X: 1}, device.Dim3{X: blocks}, blocks*elemSize)
	}

	// Pass 3: add each block's carry to every element of its window.
	if err == nil {
		err = ctx.LaunchFunc(func(tid device.ThreadID, _ ...interface{}) {
			addCarry(tid, outs, car, n)
		}, grid, block)
	}

	syncErr := ctx.Synchronize()
	freeErr := ctx.Free(carries)
	if err != nil {
		return err
	}
	if syncErr != nil {
		return syncErr
	}
	return freeErr
}

// scanBlock computes the exclusive scan of the block's window of in into
// out, looping over the window in chunks of one block width. The block
// total is written to carries only after the final output write.
func scanBlock[T scalar](t device.BlockThread, in, out, carries []T, n int) {
	blocks := t.GridDim.X
	threads := t.BlockDim.X
	tid := t.ThreadIdx.X

	per := (n + blocks - 1) / blocks
	start := t.BlockIdx.X * per
	end := start + per
	if end > n {
		end = n
	}

	shared := sharedView[T](t, threads)

	var blockOffset T
	for base := start; base < end; base += threads {
		i := base + tid
		var v T
		if i < end {
			v = in[i]
		}
		shared[tid] = v
		t.Sync()

		// Hillis-Steele inclusive scan over the chunk
		for stride := 1; stride < threads; stride <<= 1 {
			var add T
			if tid >= stride {
				add = shared[tid-stride]
			}
			t.Sync()
			shared[tid] += add
			t.Sync()
		}

		if i < end {
			out[i] = blockOffset + shared[tid] - v
		}

		blockOffset += shared[threads-1]
		t.Sync() // chunk total read before the next chunk overwrites shared
	}

	if tid == 0 {
		carries[t.BlockIdx.X] = blockOffset
	}
}

// scanCarries converts per-block totals into per-block starting offsets,
// in place, using the same stride-doubling pattern as the local scan.
func scanCarries[T scalar](t device.BlockThread, carries []T) {
	width := t.BlockDim.X
	tid := t.ThreadIdx.X

	shared := sharedView[T](t, width)

	v := carries[tid]
	shared[tid] = v
	t.Sync()

	for stride := 1; stride < width; stride <<= 1 {
		var add T
		if tid >= stride {
			add = shared[tid-stride]
		}
		t.Sync()
		shared[tid] += add
		t.Sync()
	}

	carries[tid] = shared[tid] - v
}

// addCarry adds the block's starting offset to every output element in
// the block's window. Uses the same window boundaries as scanBlock.
func addCarry[T scalar](tid device.ThreadID, out, carries []T, n int) {
	blocks := tid.GridDim.X
	threads := tid.BlockDim.X

	per := (n + blocks - 1) / blocks
	start := tid.BlockIdx.X * per
	end := start + per
	if end > n {
		end = n
	}

	carry := carries[tid.BlockIdx.X]
	for i := start + tid.ThreadIdx.X; i < end; i += threads {
		out[i] += carry
	}
}
