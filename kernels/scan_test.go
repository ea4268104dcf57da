package kernels_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViktorB9898/GPU-Programming/device"
	"github.com/ViktorB9898/GPU-Programming/kernels"
)

func refExclusiveInt32(in []int32) []int32 {
	out := make([]int32, len(in))
	var sum int32
	for i, v := range in {
		out[i] = sum
		sum += v
	}
	return out
}

func refExclusiveFloat64(in []float64) []float64 {
	out := make([]float64, len(in))
	var sum float64
	for i, v := range in {
		out[i] = sum
		sum += v
	}
	return out
}

func scanConfigs() []kernels.Config {
	return []kernels.Config{
		{}, // defaults
		{Blocks: 1, ThreadsPerBlock: 32},
		{Blocks: 3, ThreadsPerBlock: 32},
		{Blocks: 7, ThreadsPerBlock: 64},
		{Blocks: 16, ThreadsPerBlock: 256},
	}
}

func TestExclusiveScanInt32(t *testing.T) {
	ctx := device.Default()
	rng := rand.New(rand.NewSource(1))

	sizes := []int{1, 2, 7, 255, 256, 257, 1000, 4099}
	for _, n := range sizes {
		in := make([]int32, n)
		for i := range in {
			in[i] = int32(rng.Intn(6))
		}
		want := refExclusiveInt32(in)

		for _, cfg := range scanConfigs() {
			t.Run(fmt.Sprintf("n=%d/blocks=%d/threads=%d", n, cfg.Blocks, cfg.ThreadsPerBlock), func(t *testing.T) {
				d_in, err := ctx.Malloc(n * 4)
				require.NoError(t, err)
				defer ctx.Free(d_in)
				d_out, err := ctx.Malloc(n * 4)
				require.NoError(t, err)
				defer ctx.Free(d_out)

				require.NoError(t, ctx.Memcpy(d_in, in, n*4, device.MemcpyHostToDevice))

				require.NoError(t, kernels.ExclusiveScanInt32(ctx, d_in, d_out, n, cfg))

				got := make([]int32, n)
				require.NoError(t, ctx.Memcpy(got, d_out, n*4, device.MemcpyDeviceToHost))

				// Integer sums do not depend on association order, so
				// every partition must produce the identical result.
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestExclusiveScanFloat64(t *testing.T) {
	ctx := device.Default()
	rng := rand.New(rand.NewSource(2))

	const n = 1500
	in := make([]float64, n)
	for i := range in {
		in[i] = rng.Float64() - 0.5
	}
	want := refExclusiveFloat64(in)

	for _, cfg := range scanConfigs() {
		d_in, err := ctx.Malloc(n * 8)
		require.NoError(t, err)
		d_out, err := ctx.Malloc(n * 8)
		require.NoError(t, err)

		require.NoError(t, ctx.Memcpy(d_in, in, n*8, device.MemcpyHostToDevice))
		require.NoError(t, kernels.ExclusiveScan(ctx, d_in, d_out, n, cfg))

		got := make([]float64, n)
		require.NoError(t, ctx.Memcpy(got, d_out, n*8, device.MemcpyDeviceToHost))

		for i := range got {
			assert.InDelta(t, want[i], got[i], 1e-10)
		}

		ctx.Free(d_in)
		ctx.Free(d_out)
	}
}

// Adding the input element-wise to the exclusive scan must reproduce the
// inclusive prefix sum exactly.
func TestScanInclusiveRoundTrip(t *testing.T) {
	ctx := device.Default()
	rng := rand.New(rand.NewSource(3))

	const n = 777
	in := make([]int32, n)
	for i := range in {
		in[i] = int32(rng.Intn(10))
	}

	d_in, err := ctx.Malloc(n * 4)
	require.NoError(t, err)
	defer ctx.Free(d_in)
	d_out, err := ctx.Malloc(n * 4)
	require.NoError(t, err)
	defer ctx.Free(d_out)

	require.NoError(t, ctx.Memcpy(d_in, in, n*4, device.MemcpyHostToDevice))
	require.NoError(t, kernels.ExclusiveScanInt32(ctx, d_in, d_out, n, kernels.Config{Blocks: 5, ThreadsPerBlock: 32}))

	got := make([]int32, n)
	require.NoError(t, ctx.Memcpy(got, d_out, n*4, device.MemcpyDeviceToHost))

	var inclusive int32
	for i := 0; i < n; i++ {
		inclusive += in[i]
		assert.Equal(t, inclusive, got[i]+in[i], "index %d", i)
	}
}

func TestScanBoundaries(t *testing.T) {
	ctx := device.Default()

	// N=0: nothing to do, no buffers touched.
	require.NoError(t, kernels.ExclusiveScanInt32(ctx, device.DevicePtr{}, device.DevicePtr{}, 0, kernels.Config{}))

	// N=1: the only output element is zero.
	d_in, err := ctx.Malloc(4)
	require.NoError(t, err)
	defer ctx.Free(d_in)
	d_out, err := ctx.Malloc(4)
	require.NoError(t, err)
	defer ctx.Free(d_out)

	d_in.Int32()[0] = 42
	d_out.Int32()[0] = -1
	require.NoError(t, kernels.ExclusiveScanInt32(ctx, d_in, d_out, 1, kernels.Config{}))
	assert.Equal(t, int32(0), d_out.Int32()[0])

	require.Error(t, kernels.ExclusiveScanInt32(ctx, d_in, d_out, -1, kernels.Config{}))
}
