// Copyright ©2018 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package affine builds affine fixed-point maps backed by sparse
// operators. It is used by tests and examples.
package affine

type entry struct {
	i, j int
	v    float64
}

// Matrix is a sparse matrix assembled from (row, column, value) entries.
// Duplicate entries are summed.
type Matrix struct {
	r, c int
	data []entry
}

// NewMatrix returns an empty r×c matrix.
func NewMatrix(r, c int) *Matrix {
	return &Matrix{
		r: r,
		c: c,
	}
}

// Dims returns the dimensions of the matrix.
func (m *Matrix) Dims() (r, c int) {
	return m.r, m.c
}

// Append adds v at position (i, j).
func (m *Matrix) Append(i, j int, v float64) {
	if i < 0 || m.r <= i {
		panic("affine: row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("affine: column index out of range")
	}
	m.data = append(m.data, entry{i, j, v})
}

// MulVec computes A*x and stores the result into dst.
func (m *Matrix) MulVec(dst, x []float64) {
	if m.c != len(x) {
		panic("affine: dimension mismatch")
	}
	if m.r != len(dst) {
		panic("affine: dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, e := range m.data {
		dst[e.i] += e.v * x[e.j]
	}
}

// Richardson returns the fixed-point map
//
//	dst = x + omega*(b - A*x)
//
// whose fixed point solves A x = b. The map is a contraction when omega is
// small enough relative to the spectrum of A.
func Richardson(a *Matrix, b []float64, omega float64) func(dst, x []float64) {
	return func(dst, x []float64) {
		a.MulVec(dst, x)
		for i, bi := range b {
			dst[i] = x[i] + omega*(bi-dst[i])
		}
	}
}

// Poisson1D returns the tridiagonal finite-difference Laplacian of size n
// with Dirichlet boundaries.
func Poisson1D(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Append(i, i, 2)
		if i > 0 {
			m.Append(i, i-1, -1)
		}
		if i < n-1 {
			m.Append(i, i+1, -1)
		}
	}
	return m
}
