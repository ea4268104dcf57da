package solver_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ViktorB9898/GPU-Programming/device"
	"github.com/ViktorB9898/GPU-Programming/solver"
	"github.com/ViktorB9898/GPU-Programming/sparse"
)

func onesVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// residualNorm computes ||b - A*x|| on the host.
func residualNorm(a *sparse.Matrix, x, b []float64) float64 {
	offs := a.RowOffsets.Int32()
	cols := a.ColIndices.Int32()
	vals := a.Values.Float64()

	var sum float64
	for r := 0; r < a.N; r++ {
		ax := 0.0
		for k := offs[r]; k < offs[r+1]; k++ {
			ax += vals[k] * x[cols[k]]
		}
		d := b[r] - ax
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestConjugateGradientPoisson(t *testing.T) {
	ctx := device.Default()

	const n = 10
	a, err := sparse.AssemblePoisson(ctx, n)
	require.NoError(t, err)
	defer a.Free(ctx)

	rhs := onesVector(a.N)
	res, err := solver.ConjugateGradient(ctx, a, rhs, solver.Config{})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Less(t, res.Residual, solver.DefaultTolerance)
	assert.Greater(t, res.Iterations, 0)
	assert.LessOrEqual(t, res.Iterations, solver.DefaultMaxIterations)
	require.Len(t, res.X, a.N)

	// Check the reported residual against a host-side recomputation.
	norm0 := math.Sqrt(float64(a.N)) // ||ones||
	assert.InDelta(t, res.Residual, residualNorm(a, res.X, rhs)/norm0, 1e-9)
}

func TestConjugateGradientMatchesDenseSolve(t *testing.T) {
	ctx := device.Default()

	const n = 6
	a, err := sparse.AssemblePoisson(ctx, n)
	require.NoError(t, err)
	defer a.Free(ctx)

	N := a.N
	rhs := make([]float64, N)
	for i := range rhs {
		rhs[i] = float64(i%5) - 2
	}

	res, err := solver.ConjugateGradient(ctx, a, rhs, solver.Config{Tolerance: 1e-10})
	require.NoError(t, err)
	require.True(t, res.Converged)

	// Dense Cholesky reference: the Poisson matrix is SPD.
	sym := mat.NewSymDense(N, nil)
	offs := a.RowOffsets.Int32()
	cols := a.ColIndices.Int32()
	vals := a.Values.Float64()
	for r := 0; r < N; r++ {
		for k := offs[r]; k < offs[r+1]; k++ {
			if int(cols[k]) >= r {
				sym.SetSym(r, int(cols[k]), vals[k])
			}
		}
	}
	var chol mat.Cholesky
	require.True(t, chol.Factorize(sym))
	var want mat.VecDense
	require.NoError(t, chol.SolveVecTo(&want, mat.NewVecDense(N, rhs)))

	for i := 0; i < N; i++ {
		assert.InDelta(t, want.AtVec(i), res.X[i], 1e-7, "index %d", i)
	}
}

func TestConjugateGradientZeroRHS(t *testing.T) {
	ctx := device.Default()

	a, err := sparse.AssemblePoisson(ctx, 5)
	require.NoError(t, err)
	defer a.Free(ctx)

	res, err := solver.ConjugateGradient(ctx, a, make([]float64, a.N), solver.Config{})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 0.0, res.Residual)
	for i, v := range res.X {
		require.Equal(t, 0.0, v, "index %d", i)
	}
}

// Hitting the iteration cap is a normal terminal state: the solve
// reports Converged == false and still returns the current iterate.
func TestConjugateGradientIterationCap(t *testing.T) {
	ctx := device.Default()

	a, err := sparse.AssemblePoisson(ctx, 16)
	require.NoError(t, err)
	defer a.Free(ctx)

	res, err := solver.ConjugateGradient(ctx, a, onesVector(a.N), solver.Config{MaxIterations: 3})
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
	assert.Greater(t, res.Residual, solver.DefaultTolerance)
	require.Len(t, res.X, a.N)

	// Three CG steps still move toward the solution.
	rhs := onesVector(a.N)
	assert.Less(t, residualNorm(a, res.X, rhs), math.Sqrt(float64(a.N)))
}

func TestConjugateGradientDimensionMismatch(t *testing.T) {
	ctx := device.Default()

	a, err := sparse.AssemblePoisson(ctx, 4)
	require.NoError(t, err)
	defer a.Free(ctx)

	_, err = solver.ConjugateGradient(ctx, a, make([]float64, a.N-1), solver.Config{})
	require.Error(t, err)
	assert.True(t, device.IsInvalidArgError(err))
}
