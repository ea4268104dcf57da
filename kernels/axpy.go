package kernels

import (
	"github.com/ViktorB9898/GPU-Programming/device"
)

// Axpy computes x[i] += alpha * y[i] for the first n elements, the update
// form used for the solution and residual vectors. The launch is
// asynchronous; operations on the same stream stay ordered, and callers
// that read x back must synchronize first.
func Axpy(ctx *device.Context, alpha float64, x, y device.DevicePtr, n int, cfg Config) error {
	if n == 0 {
		return nil
	}
	cfg = cfg.WithDefaults(n)
	gridStride := cfg.Blocks * cfg.ThreadsPerBlock

	xs := view[float64](x, n)
	ys := view[float64](y, n)

	return ctx.LaunchFunc(func(tid device.ThreadID, _ ...interface{}) {
		for i := tid.Global(); i < n; i += gridStride {
			xs[i] += alpha * ys[i]
		}
	}, device.Dim3{X: cfg.Blocks}, device.Dim3{X: cfg.ThreadsPerBlock})
}

// Xpay computes x[i] = y[i] + alpha * x[i] for the first n elements, the
// update form used for the search direction, where x is the overwritten
// operand rather than the accumulator. Asynchronous like Axpy.
func Xpay(ctx *device.Context, alpha float64, x, y device.DevicePtr, n int, cfg Config) error {
	if n == 0 {
		return nil
	}
	cfg = cfg.WithDefaults(n)
	gridStride := cfg.Blocks * cfg.ThreadsPerBlock

	xs := view[float64](x, n)
	ys := view[float64](y, n)

	return ctx.LaunchFunc(func(tid device.ThreadID, _ ...interface{}) {
		for i := tid.Global(); i < n; i += gridStride {
			xs[i] = ys[i] + alpha*xs[i]
		}
	}, device.Dim3{X: cfg.Blocks}, device.Dim3{X: cfg.ThreadsPerBlock})
}
