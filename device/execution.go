package device

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// launchInternal implements the core kernel execution logic.
// Threads within a block run sequentially on one worker; blocks are
// partitioned across workers to maximize cache reuse.
func (ctx *Context) launchInternal(
	kernelFunc func(ThreadID, ...interface{}),
	grid, block Dim3,
	stream *Stream,
	args ...interface{},
) error {
	gridSize := grid.Size()
	blockSize := block.Size()

	if blockSize > MaxThreadsPerBlock {
		return NewLaunchError("Launch",
			fmt.Sprintf("block size %d exceeds maximum %d", blockSize, MaxThreadsPerBlock), nil)
	}

	// Handle edge case where grid size is zero
	if gridSize == 0 {
		// Submit an empty task to maintain stream ordering
		stream.Submit(func() {})
		return nil
	}

	numWorkers := runtime.NumCPU()
	if gridSize < numWorkers {
		numWorkers = gridSize
	}

	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	stream.Submit(func() {
		var wg sync.WaitGroup
		wg.Add(numWorkers)

		for workerID := 0; workerID < numWorkers; workerID++ {
			startBlock := workerID * blocksPerWorker
			endBlock := startBlock + blocksPerWorker
			if endBlock > gridSize {
				endBlock = gridSize
			}

			go func(startBlock, endBlock int) {
				defer wg.Done()

				for blockID := startBlock; blockID < endBlock; blockID++ {
					blockIdx := linearTo3D(blockID, grid)

					for threadID := 0; threadID < blockSize; threadID++ {
						threadIdx := linearTo3D(threadID, block)

						tid := ThreadID{
							BlockIdx:  blockIdx,
							ThreadIdx: threadIdx,
							BlockDim:  block,
							GridDim:   grid,
						}

						kernelFunc(tid, args...)
					}
				}
			}(startBlock, endBlock)
		}

		wg.Wait()
	})

	return nil
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	x := dim.X
	y := dim.Y
	if y == 0 {
		y = 1
	}
	z := linear / (x * y)
	ry := (linear % (x * y)) / x
	rx := linear % x
	return Dim3{X: rx, Y: ry, Z: z}
}

// Barrier is a reusable synchronization point for a fixed number of
// participants, the CPU equivalent of __syncthreads(). All participants
// must reach Wait before any proceeds past it; the barrier then resets
// for the next phase.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   uint64
}

// NewBarrier creates a barrier for the given number of participants.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all participants have called Wait for the current
// phase.
func (b *Barrier) Wait() {
	b.mu.Lock()
	phase := b.phase
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for phase == b.phase {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// BlockThread identifies one thread of a cooperatively executed block.
// Unlike the plain launch path, every thread of the block runs as its own
// goroutine, so threads may synchronize through Sync and communicate
// through the block's shared memory.
type BlockThread struct {
	ThreadID
	barrier *Barrier
	shared  DevicePtr
}

// Sync waits until every thread of the block has reached the same point.
// Required before any read of shared memory written by another thread.
func (t BlockThread) Sync() {
	t.barrier.Wait()
}

// Shared returns the block's shared memory region. Its size is the
// sharedBytes argument of the cooperative launch; use the DevicePtr typed
// views to access it.
func (t BlockThread) Shared() DevicePtr {
	return t.shared
}

// CooperativeKernel is a kernel whose threads cooperate through barriers
// and per-block shared memory.
type CooperativeKernel func(t BlockThread, args ...interface{})

// LaunchCooperative executes a cooperative kernel on the default stream.
// Each block gets sharedBytes bytes of shared memory and runs all of its
// threads concurrently. Only the X dimensions of grid and block are used.
func (ctx *Context) LaunchCooperative(fn CooperativeKernel, grid, block Dim3, sharedBytes int, args ...interface{}) error {
	return ctx.LaunchCooperativeStream(fn, grid, block, sharedBytes, ctx.defaultStream, args...)
}

// LaunchCooperativeStream executes a cooperative kernel on a specific
// stream.
func (ctx *Context) LaunchCooperativeStream(fn CooperativeKernel, grid, block Dim3, sharedBytes int, stream *Stream, args ...interface{}) error {
	gridSize := grid.X
	blockSize := block.X

	if blockSize < 1 || blockSize > MaxThreadsPerBlock {
		return NewLaunchError("LaunchCooperative",
			fmt.Sprintf("block size %d outside [1, %d]", blockSize, MaxThreadsPerBlock), nil)
	}
	if gridSize == 0 {
		stream.Submit(func() {})
		return nil
	}

	numWorkers := runtime.NumCPU()
	if gridSize < numWorkers {
		numWorkers = gridSize
	}
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	stream.Submit(func() {
		var wg sync.WaitGroup
		wg.Add(numWorkers)

		for workerID := 0; workerID < numWorkers; workerID++ {
			startBlock := workerID * blocksPerWorker
			endBlock := startBlock + blocksPerWorker
			if endBlock > gridSize {
				endBlock = gridSize
			}

			go func(startBlock, endBlock int) {
				defer wg.Done()

				for blockID := startBlock; blockID < endBlock; blockID++ {
					runBlock(fn, blockID, grid, block, sharedBytes, args)
				}
			}(startBlock, endBlock)
		}

		wg.Wait()
	})

	return nil
}

// runBlock executes all threads of one cooperative block and waits for
// them to finish.
func runBlock(fn CooperativeKernel, blockID int, grid, block Dim3, sharedBytes int, args []interface{}) {
	blockSize := block.X

	var shared DevicePtr
	if sharedBytes > 0 {
		buf := make([]byte, sharedBytes)
		shared = DevicePtr{ptr: unsafe.Pointer(&buf[0]), size: sharedBytes}
	}

	barrier := NewBarrier(blockSize)

	var wg sync.WaitGroup
	wg.Add(blockSize)
	for threadID := 0; threadID < blockSize; threadID++ {
		go func(threadID int) {
			defer wg.Done()
			t := BlockThread{
				ThreadID: ThreadID{
					BlockIdx:  Dim3{X: blockID},
					ThreadIdx: Dim3{X: threadID},
					BlockDim:  block,
					GridDim:   grid,
				},
				barrier: barrier,
				shared:  shared,
			}
			fn(t, args...)
		}(threadID)
	}
	wg.Wait()
}
