// Package sparse provides the CSR sparse matrix type, the 5-point Poisson
// stencil assembler, the sparse matrix-vector product kernel, and a binary
// container format for saving and loading assembled matrices.
package sparse
