// Package solver implements the conjugate gradient method for symmetric
// positive definite sparse systems, composing the device kernels for
// sparse matrix-vector products, dot products and vector updates.
package solver

import (
	"math"

	"github.com/ViktorB9898/GPU-Programming/device"
	"github.com/ViktorB9898/GPU-Programming/kernels"
	"github.com/ViktorB9898/GPU-Programming/sparse"
)

// Defaults of the stopping rule.
const (
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 10000
)

// Config controls the conjugate gradient iteration.
type Config struct {
	// Tolerance is the relative residual threshold: the solve stops once
	// sqrt(r·r / r0·r0) drops below it. Defaults to DefaultTolerance.
	// The norm is relative to the initial residual only; a rhs with
	// near-zero norm converges immediately by construction.
	Tolerance float64

	// MaxIterations caps the iteration count. Defaults to
	// DefaultMaxIterations. Hitting the cap is not an error; the result
	// carries Converged == false and the solution reached so far.
	MaxIterations int

	// Kernel is the launch partitioning used for all kernels of the
	// solve. Zero value selects defaults.
	Kernel kernels.Config
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	return c
}

// Result is the terminal state of a solve. Both terminal states carry the
// current solution: a capped run still yields a usable, if poor, iterate,
// and the caller decides whether to treat it as failure.
type Result struct {
	// X is the solution iterate at termination, one entry per matrix row.
	X []float64

	// Iterations is the number of CG iterations performed.
	Iterations int

	// Residual is the relative residual sqrt(r·r / r0·r0) at termination.
	Residual float64

	// Converged reports whether Residual dropped below the tolerance
	// within the iteration cap.
	Converged bool
}

// ConjugateGradient solves A*x = rhs for the SPD matrix A, starting from
// x = 0 with p = r = rhs. Each iteration computes Ap, the step size
// alpha = (r·r)/(p·Ap) reusing the cached r·r of the previous iteration,
// updates solution and residual, and forms the next search direction
// p = r + beta*p with beta = (r·r)_new/(r·r)_old.
//
// An error is returned only for allocation or launch failure;
// non-convergence is reported through the Result.
func ConjugateGradient(ctx *device.Context, a *sparse.Matrix, rhs []float64, cfg Config) (Result, error) {
	n := a.N
	if len(rhs) != n {
		return Result{}, device.NewInvalidArgError("ConjugateGradient",
			"rhs length does not match matrix dimension")
	}
	cfg = cfg.withDefaults()

	// Work vectors live for the duration of the solve.
	bufs := make([]device.DevicePtr, 0, 4)
	alloc := func() (device.DevicePtr, error) {
		ptr, err := ctx.Malloc(n * 8)
		if err == nil {
			bufs = append(bufs, ptr)
		}
		return ptr, err
	}
	release := func() {
		ctx.Synchronize()
		for _, ptr := range bufs {
			ctx.Free(ptr)
		}
	}

	x, err := alloc()
	if err != nil {
		return Result{}, err
	}
	defer release()
	r, err := alloc()
	if err != nil {
		return Result{}, err
	}
	p, err := alloc()
	if err != nil {
		return Result{}, err
	}
	ap, err := alloc()
	if err != nil {
		return Result{}, err
	}

	clear(x.Float64()[:n])
	if err := ctx.Memcpy(r, rhs, n*8, device.MemcpyHostToDevice); err != nil {
		return Result{}, err
	}
	if err := ctx.Memcpy(p, rhs, n*8, device.MemcpyHostToDevice); err != nil {
		return Result{}, err
	}

	// Captured once; all residual checks normalize by it.
	rr0, err := kernels.Dot(ctx, r, r, n, cfg.Kernel)
	if err != nil {
		return Result{}, err
	}
	if rr0 == 0 {
		return Result{X: make([]float64, n), Converged: true}, nil
	}

	rr := rr0
	res := Result{}
	for res.Iterations < cfg.MaxIterations {
		if err := sparse.MatVec(ctx, a, p, ap, cfg.Kernel); err != nil {
			return Result{}, err
		}
		pAp, err := kernels.Dot(ctx, p, ap, n, cfg.Kernel)
		if err != nil {
			return Result{}, err
		}
		alpha := rr / pAp

		if err := kernels.Axpy(ctx, alpha, x, p, n, cfg.Kernel); err != nil {
			return Result{}, err
		}
		if err := kernels.Axpy(ctx, -alpha, r, ap, n, cfg.Kernel); err != nil {
			return Result{}, err
		}

		rrNew, err := kernels.Dot(ctx, r, r, n, cfg.Kernel)
		if err != nil {
			return Result{}, err
		}
		res.Iterations++
		res.Residual = math.Sqrt(rrNew / rr0)

		if res.Residual < cfg.Tolerance {
			res.Converged = true
			break
		}

		beta := rrNew / rr
		if err := kernels.Xpay(ctx, beta, p, r, n, cfg.Kernel); err != nil {
			return Result{}, err
		}
		rr = rrNew
	}

	if err := ctx.Synchronize(); err != nil {
		return Result{}, err
	}
	res.X = make([]float64, n)
	if err := ctx.Memcpy(res.X, x, n*8, device.MemcpyDeviceToHost); err != nil {
		return Result{}, err
	}
	return res, nil
}
