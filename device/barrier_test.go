package device

import (
	"sync"
	"sync/atomic"
	"testing"
)

// All participants must observe every write from the phase before the
// barrier. Each goroutine increments a counter, waits, and checks that
// the counter reached the party count.
func TestBarrierPhases(t *testing.T) {
	const parties = 32
	const phases = 100

	b := NewBarrier(parties)
	var counter int64

	var wg sync.WaitGroup
	wg.Add(parties)
	for p := 0; p < parties; p++ {
		go func() {
			defer wg.Done()
			for phase := 1; phase <= phases; phase++ {
				atomic.AddInt64(&counter, 1)
				b.Wait()
				got := atomic.LoadInt64(&counter)
				if got < int64(phase*parties) {
					t.Errorf("Phase %d: counter %d, want at least %d", phase, got, phase*parties)
				}
				b.Wait()
			}
		}()
	}
	wg.Wait()

	if counter != parties*phases {
		t.Errorf("Counter %d, want %d", counter, parties*phases)
	}
}

// Reversing each block's window through shared memory only works if Sync
// actually separates the write and read phases.
func TestCooperativeSharedMemory(t *testing.T) {
	const blocks = 4
	const threads = 64
	const n = blocks * threads

	d_out, _ := Malloc(n * 8)
	defer Free(d_out)
	out := d_out.Float64()

	ctx := Default()
	err := ctx.LaunchCooperative(func(bt BlockThread, args ...interface{}) {
		tid := bt.ThreadIdx.X
		shared := bt.Shared().Float64()

		shared[tid] = float64(bt.Global())
		bt.Sync()
		out[bt.Global()] = shared[threads-1-tid]
	}, Dim3{X: blocks}, Dim3{X: threads}, threads*8)
	if err != nil {
		t.Fatalf("Cooperative launch failed: %v", err)
	}
	Synchronize()

	for b := 0; b < blocks; b++ {
		for i := 0; i < threads; i++ {
			want := float64(b*threads + threads - 1 - i)
			if got := out[b*threads+i]; got != want {
				t.Fatalf("Block %d thread %d: got %f, want %f", b, i, got, want)
			}
		}
	}
}

func TestCooperativeBlockValidation(t *testing.T) {
	ctx := Default()

	err := ctx.LaunchCooperative(func(bt BlockThread, args ...interface{}) {},
		Dim3{X: 1}, Dim3{X: MaxThreadsPerBlock + 1}, 0)
	if !IsLaunchError(err) {
		t.Errorf("Expected launch error for oversized block, got %v", err)
	}

	err = ctx.LaunchCooperative(func(bt BlockThread, args ...interface{}) {},
		Dim3{X: 1}, Dim3{X: 0}, 0)
	if !IsLaunchError(err) {
		t.Errorf("Expected launch error for empty block, got %v", err)
	}

	// Zero grid is valid and keeps stream ordering.
	err = ctx.LaunchCooperative(func(bt BlockThread, args ...interface{}) {
		t.Error("kernel should not execute for empty grid")
	}, Dim3{X: 0}, Dim3{X: 64}, 0)
	if err != nil {
		t.Fatalf("Zero-grid cooperative launch failed: %v", err)
	}
	Synchronize()
}
