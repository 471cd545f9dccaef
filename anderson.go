// Copyright ©2018 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package anderson implements Anderson acceleration of fixed-point
// iterations.
//
// Anderson acceleration improves the convergence of the iteration
//
//	x_{k+1} = F(x_k)
//
// by combining a short window of past iterates and residuals into an
// extrapolated next point. The host iteration evaluates F itself and hands
// each pair (x, F(x)) to an Accelerator, which may overwrite F(x) with an
// improved estimate. Every step the accelerator updates its history
// window, recomputes a small Gram matrix of inner products of the stored
// difference vectors, and solves a dense linear system for the combination
// weights. A safeguard rejects the extrapolation when the solve breaks
// down or the weights are too large, in which case the iteration falls
// back to the raw map value for that one step.
package anderson

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/lapack/lapack64"
)

// Type selects which history matrix anchors the Gram matrix and the solve
// projection. The two variants are equivalent formulations of Anderson
// acceleration that can differ numerically.
type Type int

const (
	// Type2 projects onto the residual differences, giving the Gram
	// matrix YᵀY. It is the zero value.
	Type2 Type = iota
	// Type1 projects onto the iterate differences, giving the mixed
	// Gram matrix SᵀY.
	Type1
)

// Status reports the outcome of a single call to Accelerator.Step.
type Status int

const (
	// Disabled means the accelerator was constructed without memory and
	// the call was a no-op.
	Disabled Status = iota
	// Warmup means the call only seeded the history window. It is
	// returned from the first step of an enabled accelerator, f is left
	// untouched.
	Warmup
	// Accepted means the extrapolated point passed the safeguard and f
	// has been overwritten with it.
	Accepted
	// Rejected means the weight solve was singular or its solution
	// exceeded the safeguard norm, and f has been left at the raw map
	// value. Rejection is not terminal, the history is retained and the
	// next step proceeds normally.
	Rejected
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Warmup:
		return "Warmup"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// DefaultMaxNorm is the safeguard threshold used when Config.MaxNorm is
// zero.
const DefaultMaxNorm = 1e10

// Config configures an Accelerator. The zero value describes a disabled
// accelerator.
type Config struct {
	// Memory is the depth of the history window, that is, the number of
	// most recent difference vectors retained. It is typically much
	// smaller than the dimension. If it is not positive, the
	// accelerator is permanently disabled: no history is allocated and
	// Step leaves f untouched.
	Memory int

	// Type selects the Anderson variant. The zero value is Type2.
	Type Type

	// MaxNorm is the safeguard threshold. A computed weight vector
	// whose 2-norm is not below MaxNorm is rejected. If it is zero,
	// DefaultMaxNorm will be used. It must not be negative.
	MaxNorm float64

	// Output, if not nil, receives one line describing every rejected
	// step. It exists for observability only, the same information is
	// carried by the Status returned from Step.
	Output io.Writer
}

// An Accelerator holds the history window and scratch buffers for
// accelerating a single fixed-point sequence. It must not be shared
// between sequences, and calls to its methods must be serialized by the
// caller.
type Accelerator struct {
	dim     int
	mem     int
	typ     Type
	maxNorm float64
	output  io.Writer

	iter int // Number of completed non-disabled Step calls.

	x, f     []float64 // Previous iterate and map value.
	g, gPrev []float64 // Current and previous residual x - F(x).
	y, s, d  []float64 // Per-step differences of g, x and f.

	// History windows with one difference vector per row. The row
	// written at step n is n mod mem, so the oldest row is overwritten
	// once the window is full. Rows not written yet stay zero.
	yHist, sHist, dHist blas64.General

	m    blas64.General // mem×mem Gram matrix, recomputed every step.
	work []float64
	ipiv []int
}

// New returns an Accelerator for sequences of the given dimension.
//
// If c.Memory is not positive, the returned accelerator is valid but
// permanently disabled. New returns an error if dim is not positive or if
// c.MaxNorm is negative.
func New(dim int, c Config) (*Accelerator, error) {
	if dim <= 0 {
		return nil, errors.New("anderson: dimension not positive")
	}
	if c.MaxNorm < 0 {
		return nil, errors.New("anderson: negative safeguard threshold")
	}
	maxNorm := c.MaxNorm
	if maxNorm == 0 {
		maxNorm = DefaultMaxNorm
	}
	a := &Accelerator{
		dim:     dim,
		mem:     c.Memory,
		typ:     c.Type,
		maxNorm: maxNorm,
		output:  c.Output,
	}
	if a.mem <= 0 {
		return a, nil
	}

	a.x = make([]float64, dim)
	a.f = make([]float64, dim)
	a.g = make([]float64, dim)
	a.gPrev = make([]float64, dim)
	a.y = make([]float64, dim)
	a.s = make([]float64, dim)
	a.d = make([]float64, dim)

	a.yHist = newGeneral(a.mem, dim)
	a.sHist = newGeneral(a.mem, dim)
	a.dHist = newGeneral(a.mem, dim)
	a.m = newGeneral(a.mem, a.mem)

	a.work = make([]float64, a.mem)
	a.ipiv = make([]int, a.mem)
	return a, nil
}

// Step hands the pair (x, f) = (x_k, F(x_k)) to the accelerator. If the
// extrapolated point passes the safeguard, f is overwritten with it and
// the caller should use it as x_{k+1}, otherwise f is left at the raw map
// value. The history window is updated before the solve is attempted, so
// a rejected step still contributes to future extrapolations.
//
// Step panics if the length of f or x differs from the dimension the
// accelerator was constructed with.
func (a *Accelerator) Step(f, x []float64) Status {
	if len(f) != a.dim || len(x) != a.dim {
		panic("anderson: mismatched vector length")
	}
	if a.mem <= 0 {
		return Disabled
	}
	a.update(f, x)
	a.iter++
	if a.iter == 1 {
		// There was no previous residual, this call could only seed
		// the history.
		return Warmup
	}
	return a.solve(f, min(a.iter-1, a.mem))
}

// update computes the difference vectors for this step, stores them into
// the history window and recomputes the Gram matrix. On entry a.x and a.f
// hold the previous iterate and map value.
func (a *Accelerator) update(f, x []float64) {
	floats.SubTo(a.g, x, f)         // g = x - F(x)
	floats.SubTo(a.s, x, a.x)       // s = x - x_prev
	floats.SubTo(a.d, f, a.f)       // d = f - f_prev
	floats.SubTo(a.y, a.g, a.gPrev) // y = g - g_prev

	row := a.iter % a.mem
	copy(a.yHist.Data[row*a.yHist.Stride:], a.y)
	copy(a.sHist.Data[row*a.sHist.Stride:], a.s)
	copy(a.dHist.Data[row*a.dHist.Stride:], a.d)

	copy(a.x, x)
	copy(a.f, f)
	copy(a.gPrev, a.g)

	// M = SᵀY for Type1 and YᵀY for Type2. With the difference vectors
	// stored as rows these are S·Yᵀ and Y·Yᵀ. All mem rows take part
	// regardless of how many have been written.
	lhs := a.yHist
	if a.typ == Type1 {
		lhs = a.sHist
	}
	blas64.Gemm(blas.NoTrans, blas.Trans, 1, lhs, a.yHist, 0, a.m)
}

// solve forms the right-hand side from the n valid history rows, solves
// M w = rhs for the combination weights and, if the safeguard admits w,
// applies the correction f -= Dᵀw. M is factorized in place, which is
// legal because update rebuilds it from scratch on the next call.
func (a *Accelerator) solve(f []float64, n int) Status {
	for i := range a.work {
		a.work[i] = 0
	}
	// rhs = S·g for Type1, Y·g for Type2, over the n valid rows.
	proj := a.yHist
	if a.typ == Type1 {
		proj = a.sHist
	}
	proj.Rows = n
	blas64.Gemv(blas.NoTrans, 1, proj,
		blas64.Vector{N: a.dim, Inc: 1, Data: a.g}, 0,
		blas64.Vector{N: n, Inc: 1, Data: a.work[:n]})

	// The system always has the full declared size mem. Slots that
	// have never been written leave exact zero rows in M, so the
	// factorization breaks down and the step is rejected until every
	// slot has been written once. The warmup call writes the first
	// slot, so that happens on call number mem.
	ok := lapack64.Getrf(a.m, a.ipiv)
	if !ok {
		a.reject("singular projection matrix")
		return Rejected
	}
	lapack64.Getrs(blas.NoTrans, a.m,
		blas64.General{Rows: a.mem, Cols: 1, Stride: 1, Data: a.work}, a.ipiv)

	nrm := floats.Norm(a.work, 2)
	if !(nrm < a.maxNorm) { // Written so that NaN is rejected too.
		a.reject(fmt.Sprintf("weight norm %.2e not below %.2e", nrm, a.maxNorm))
		return Rejected
	}

	dh := a.dHist
	dh.Rows = n
	blas64.Gemv(blas.Trans, -1, dh,
		blas64.Vector{N: n, Inc: 1, Data: a.work[:n]}, 1,
		blas64.Vector{N: a.dim, Inc: 1, Data: f})
	return Accepted
}

func (a *Accelerator) reject(reason string) {
	if a.output != nil {
		fmt.Fprintf(a.output, "anderson: iter %d: rejected step: %s\n", a.iter, reason)
	}
}

// Release drops every buffer owned by the accelerator. It is safe to call
// on a disabled instance, which owns no buffers, and calling it more than
// once is harmless. A released accelerator must not be stepped again.
func (a *Accelerator) Release() {
	a.x, a.f, a.g, a.gPrev = nil, nil, nil, nil
	a.y, a.s, a.d = nil, nil, nil
	a.yHist.Data, a.sHist.Data, a.dHist.Data = nil, nil, nil
	a.m.Data = nil
	a.work, a.ipiv = nil, nil
}

func newGeneral(r, c int) blas64.General {
	return blas64.General{Rows: r, Cols: c, Stride: c, Data: make([]float64, r*c)}
}
