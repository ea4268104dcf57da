// Command poissoncg assembles the 2D Poisson system on an n-by-n grid and
// solves it with the conjugate gradient method, reporting timings the way
// a GPU benchmark harness would: kernels timed around full synchronization
// points, with the median over repetitions.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ViktorB9898/GPU-Programming/device"
	"github.com/ViktorB9898/GPU-Programming/kernels"
	"github.com/ViktorB9898/GPU-Programming/solver"
	"github.com/ViktorB9898/GPU-Programming/sparse"
)

func main() {
	var (
		n        = flag.Int("n", 100, "grid dimension (system size is n*n)")
		threads  = flag.Int("threads", device.DefaultBlockSize, "threads per block")
		blocks   = flag.Int("blocks", 0, "number of blocks (0 = auto)")
		reps     = flag.Int("reps", 6, "solve repetitions for timing")
		tol      = flag.Float64("tol", solver.DefaultTolerance, "relative residual tolerance")
		maxIter  = flag.Int("maxiter", solver.DefaultMaxIterations, "iteration cap")
		savePath = flag.String("save", "", "write the assembled matrix to this file")
		loadPath = flag.String("load", "", "read the matrix from this file instead of assembling")
		compress = flag.String("compress", "zstd", "matrix file compression: none, zstd or lz4")
	)
	flag.Parse()

	if err := run(*n, *threads, *blocks, *reps, *tol, *maxIter, *savePath, *loadPath, *compress); err != nil {
		fmt.Fprintln(os.Stderr, "poissoncg:", err)
		os.Exit(1)
	}
}

func run(n, threads, blocks, reps int, tol float64, maxIter int, savePath, loadPath, compress string) error {
	ctx := device.Default()
	dev := ctx.Device()
	fmt.Printf("# Device: %s, %d cores, %.1f GiB\n", dev.Name, dev.NumCores, float64(dev.TotalMem)/(1<<30))
	fmt.Printf("# %s\n", device.GetCPUInfo())

	kcfg := kernels.Config{Blocks: blocks, ThreadsPerBlock: threads}

	var (
		a   *sparse.Matrix
		err error
	)
	start := time.Now()
	if loadPath != "" {
		a, err = sparse.ReadFile(ctx, loadPath)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %s: N=%d, nnz=%d in %v\n", loadPath, a.N, a.NNZ, time.Since(start))
	} else {
		a, err = sparse.AssemblePoisson(ctx, n)
		if err != nil {
			return err
		}
		fmt.Printf("Assembled %dx%d Poisson system: N=%d, nnz=%d in %v\n", n, n, a.N, a.NNZ, time.Since(start))
	}
	defer a.Free(ctx)

	if savePath != "" {
		comp, err := parseCompression(compress)
		if err != nil {
			return err
		}
		start = time.Now()
		if err := a.WriteFile(savePath, comp); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%s) in %v\n", savePath, compress, time.Since(start))
	}

	rhs := make([]float64, a.N)
	for i := range rhs {
		rhs[i] = 1
	}

	scfg := solver.Config{Tolerance: tol, MaxIterations: maxIter, Kernel: kcfg}

	if reps < 1 {
		reps = 1
	}
	var result solver.Result
	times := make([]time.Duration, 0, reps)
	for rep := 0; rep < reps; rep++ {
		start = time.Now()
		result, err = solver.ConjugateGradient(ctx, a, rhs, scfg)
		if err != nil {
			return err
		}
		times = append(times, time.Since(start))
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	if result.Converged {
		fmt.Printf("Converged after %d iterations, relative residual %.3e\n", result.Iterations, result.Residual)
	} else {
		fmt.Printf("Did not converge within %d iterations, relative residual %.3e\n", result.Iterations, result.Residual)
	}
	preview := result.X
	if len(preview) > 3 {
		preview = preview[:3]
	}
	fmt.Print("Solution:")
	for _, v := range preview {
		fmt.Printf(" %.6f", v)
	}
	fmt.Println(" ...")
	fmt.Printf("Median solve time over %d runs: %v\n", reps, times[len(times)/2])
	return nil
}

func parseCompression(name string) (sparse.Compression, error) {
	switch name {
	case "none":
		return sparse.CompressNone, nil
	case "zstd":
		return sparse.CompressZstd, nil
	case "lz4":
		return sparse.CompressLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}
