// Package kernels provides generic device kernels: a multi-block exclusive
// prefix sum, a reduction-based dot product, and fused vector updates.
// They are the building blocks the sparse assembler and the conjugate
// gradient solver compose, and are usable on their own.
package kernels
