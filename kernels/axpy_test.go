package kernels_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViktorB9898/GPU-Programming/device"
	"github.com/ViktorB9898/GPU-Programming/kernels"
)

func TestAxpy(t *testing.T) {
	ctx := device.Default()
	rng := rand.New(rand.NewSource(21))

	const n = 10007
	const alpha = 0.75

	hx := make([]float64, n)
	hy := make([]float64, n)
	for i := 0; i < n; i++ {
		hx[i] = rng.Float64()
		hy[i] = rng.Float64()
	}

	dx, err := ctx.Malloc(n * 8)
	require.NoError(t, err)
	defer ctx.Free(dx)
	dy, err := ctx.Malloc(n * 8)
	require.NoError(t, err)
	defer ctx.Free(dy)

	require.NoError(t, ctx.Memcpy(dx, hx, n*8, device.MemcpyHostToDevice))
	require.NoError(t, ctx.Memcpy(dy, hy, n*8, device.MemcpyHostToDevice))

	require.NoError(t, kernels.Axpy(ctx, alpha, dx, dy, n, kernels.Config{}))
	require.NoError(t, ctx.Synchronize())

	got := dx.Float64()
	for i := 0; i < n; i++ {
		assert.InDelta(t, hx[i]+alpha*hy[i], got[i], 1e-14, "index %d", i)
	}

	// y must be untouched.
	ys := dy.Float64()
	for i := 0; i < n; i++ {
		require.Equal(t, hy[i], ys[i], "index %d", i)
	}
}

func TestXpay(t *testing.T) {
	ctx := device.Default()
	rng := rand.New(rand.NewSource(22))

	const n = 513
	const alpha = -1.25

	hx := make([]float64, n)
	hy := make([]float64, n)
	for i := 0; i < n; i++ {
		hx[i] = rng.Float64()
		hy[i] = rng.Float64()
	}

	dx, err := ctx.Malloc(n * 8)
	require.NoError(t, err)
	defer ctx.Free(dx)
	dy, err := ctx.Malloc(n * 8)
	require.NoError(t, err)
	defer ctx.Free(dy)

	require.NoError(t, ctx.Memcpy(dx, hx, n*8, device.MemcpyHostToDevice))
	require.NoError(t, ctx.Memcpy(dy, hy, n*8, device.MemcpyHostToDevice))

	require.NoError(t, kernels.Xpay(ctx, alpha, dx, dy, n, kernels.Config{Blocks: 2, ThreadsPerBlock: 64}))
	require.NoError(t, ctx.Synchronize())

	got := dx.Float64()
	for i := 0; i < n; i++ {
		assert.InDelta(t, hy[i]+alpha*hx[i], got[i], 1e-14, "index %d", i)
	}
}

func TestAxpyEmpty(t *testing.T) {
	ctx := device.Default()
	require.NoError(t, kernels.Axpy(ctx, 2.0, device.DevicePtr{}, device.DevicePtr{}, 0, kernels.Config{}))
	require.NoError(t, kernels.Xpay(ctx, 2.0, device.DevicePtr{}, device.DevicePtr{}, 0, kernels.Config{}))
}
