package sparse

import (
	"github.com/ViktorB9898/GPU-Programming/device"
	"github.com/ViktorB9898/GPU-Programming/kernels"
)

// Matrix is a square sparse matrix in Compressed Sparse Row layout,
// resident in device memory. RowOffsets has N+1 int32 entries and is the
// exclusive prefix sum of per-row nonzero counts, with RowOffsets[0] = 0
// and RowOffsets[N] = NNZ. ColIndices and Values each have NNZ entries,
// grouped contiguously by row.
//
// A Matrix is immutable once assembled; the solver only reads it.
type Matrix struct {
	N   int // number of rows and columns
	NNZ int // number of stored entries

	RowOffsets device.DevicePtr // int32, length N+1
	ColIndices device.DevicePtr // int32, length NNZ
	Values     device.DevicePtr // float64, length NNZ
}

// NewMatrix allocates an uninitialized CSR matrix with the given
// dimension and capacity for nnz stored entries.
func NewMatrix(ctx *device.Context, n, nnz int) (*Matrix, error) {
	if n <= 0 || nnz < 0 {
		return nil, device.NewInvalidArgError("NewMatrix", "dimension must be positive, nnz non-negative")
	}

	m := &Matrix{N: n, NNZ: nnz}
	var err error
	if m.RowOffsets, err = ctx.Malloc((n + 1) * 4); err != nil {
		return nil, err
	}
	if nnz == 0 {
		return m, nil
	}
	if m.ColIndices, err = ctx.Malloc(nnz * 4); err != nil {
		ctx.Free(m.RowOffsets)
		return nil, err
	}
	if m.Values, err = ctx.Malloc(nnz * 8); err != nil {
		ctx.Free(m.RowOffsets)
		ctx.Free(m.ColIndices)
		return nil, err
	}
	return m, nil
}

// Free releases the matrix buffers. The matrix must not be used after
// Free; pending kernels must have been synchronized.
func (m *Matrix) Free(ctx *device.Context) error {
	var first error
	for _, ptr := range []device.DevicePtr{m.RowOffsets, m.ColIndices, m.Values} {
		if ptr.IsNil() {
			continue
		}
		if err := ctx.Free(ptr); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MatVec computes y = A*x for dense device vectors x and y of dimension
// A.N. Each thread processes one or more rows (grid-stride over the row
// index), so every output element is written by exactly one thread and no
// accumulation race exists. x and y must not alias. The launch is
// asynchronous on the context's default stream.
func MatVec(ctx *device.Context, a *Matrix, x, y device.DevicePtr, cfg kernels.Config) error {
	n := a.N
	cfg = cfg.WithDefaults(n)
	gridStride := cfg.Blocks * cfg.ThreadsPerBlock

	offs := a.RowOffsets.Int32()
	cols := a.ColIndices.Int32()
	vals := a.Values.Float64()
	xs := x.Float64()
	ys := y.Float64()

	return ctx.LaunchFunc(func(tid device.ThreadID, _ ...interface{}) {
		for row := tid.Global(); row < n; row += gridStride {
			var sum float64
			for k := offs[row]; k < offs[row+1]; k++ {
				sum += vals[k] * xs[cols[k]]
			}
			ys[row] = sum
		}
	}, device.Dim3{X: cfg.Blocks}, device.Dim3{X: cfg.ThreadsPerBlock})
}
