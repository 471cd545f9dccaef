// Copyright ©2018 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package anderson

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestNewErrors(t *testing.T) {
	_, err := New(0, Config{Memory: 2})
	require.Error(t, err)
	_, err = New(-3, Config{})
	require.Error(t, err)
	_, err = New(2, Config{Memory: 2, MaxNorm: -1})
	require.Error(t, err)
}

func TestStepDisabled(t *testing.T) {
	for _, mem := range []int{0, -1, -10} {
		a, err := New(4, Config{Memory: mem})
		require.NoError(t, err)

		x := []float64{1, 2, 3, 4}
		f := []float64{0.5, 1.5, 2.5, 3.5}
		want := append([]float64(nil), f...)
		for i := 0; i < 5; i++ {
			require.Equal(t, Disabled, a.Step(f, x))
			require.Equal(t, want, f)
		}
		require.Equal(t, 0, a.iter)

		// A disabled instance owns no buffers, releasing it must
		// still be safe.
		a.Release()
	}
}

func TestStepWarmup(t *testing.T) {
	a, err := New(2, Config{Memory: 3})
	require.NoError(t, err)

	x := []float64{1, -2}
	f := []float64{0.25, 0.75}
	want := append([]float64(nil), f...)

	require.Equal(t, Warmup, a.Step(f, x))
	require.Equal(t, want, f)
	require.Equal(t, 1, a.iter)
	require.Equal(t, x, a.x)
	require.Equal(t, want, a.f)
	require.Equal(t, []float64{x[0] - f[0], x[1] - f[1]}, a.gPrev)
}

func TestStepCircularWindow(t *testing.T) {
	a, err := New(2, Config{Memory: 2})
	require.NoError(t, err)

	// Three distinct pairs so that the window wraps around once.
	xs := [][]float64{{1, 0}, {2, 1}, {4, 5}}
	fs := [][]float64{{0, 1}, {1, 3}, {2, 2}}
	for i := range xs {
		f := append([]float64(nil), fs[i]...)
		a.Step(f, xs[i])
	}

	// The slot written by call n is n mod 2: call 1 wrote slot 0 with
	// s1 = x1-0, call 2 wrote slot 1 with s2 = x2-x1, and call 3 must
	// have overwritten slot 0 with s3 = x3-x2.
	require.Equal(t, []float64{4 - 2, 5 - 1}, a.sHist.Data[:2])
	require.Equal(t, []float64{2 - 1, 1 - 0}, a.sHist.Data[2:])
}

func TestStepIdentityMap(t *testing.T) {
	var buf bytes.Buffer
	a, err := New(3, Config{Memory: 2, Output: &buf})
	require.NoError(t, err)

	// For the identity map the residual is always zero, so every
	// history column and the Gram matrix are zero and every solve after
	// warmup must be rejected with f falling back to x.
	xs := [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {1, 0, 1}}
	for i, x := range xs {
		f := append([]float64(nil), x...)
		status := a.Step(f, x)
		if i == 0 {
			require.Equal(t, Warmup, status)
		} else {
			require.Equal(t, Rejected, status)
		}
		require.Equal(t, x, f)
	}
	require.Contains(t, buf.String(), "rejected step")
}

func TestStepScalarClosedForm(t *testing.T) {
	// With a window of depth one and Type1, the accepted correction
	// reduces to the scalar weight w = (s·g)/(s·y) applied as
	// f - d*w, which is computable by hand from 2-element vectors.
	for _, f1 := range [][]float64{
		{1.5, 0.5},  // s·g = 0, the correction is zero.
		{1.5, 0.25}, // Nonzero correction.
	} {
		a, err := New(2, Config{Memory: 1, Type: Type1})
		require.NoError(t, err)

		x0 := []float64{0, 0}
		f0 := []float64{1, 1}
		require.Equal(t, Warmup, a.Step(append([]float64(nil), f0...), x0))

		x1 := []float64{1, 1}
		f := append([]float64(nil), f1...)
		require.Equal(t, Accepted, a.Step(f, x1))

		g0 := []float64{x0[0] - f0[0], x0[1] - f0[1]}
		g1 := []float64{x1[0] - f1[0], x1[1] - f1[1]}
		s := []float64{x1[0] - x0[0], x1[1] - x0[1]}
		y := []float64{g1[0] - g0[0], g1[1] - g0[1]}
		d := []float64{f1[0] - f0[0], f1[1] - f0[1]}
		w := floats.Dot(s, g1) / floats.Dot(s, y)
		want := []float64{f1[0] - d[0]*w, f1[1] - d[1]*w}

		require.Equal(t, want, f)
	}
}

// affineDiag returns pairs (x_k, F(x_k)) of the raw iteration of the map
// F(x) = diag(c)*x + b started from the zero vector.
func affineDiag(c, b []float64, steps int) (xs, fs [][]float64) {
	x := make([]float64, len(c))
	for k := 0; k < steps; k++ {
		f := make([]float64, len(c))
		for i := range f {
			f[i] = c[i]*x[i] + b[i]
		}
		xs = append(xs, append([]float64(nil), x...))
		fs = append(fs, f)
		x = f
	}
	return xs, fs
}

func TestStepHistoryFill(t *testing.T) {
	// The weight solve always has the full declared size, so while the
	// window contains never-written slots the Gram matrix is exactly
	// singular and the step is rejected. The warmup call writes the
	// first slot, so the window is full and the first correction is
	// applied on call number Memory.
	a, err := New(3, Config{Memory: 3})
	require.NoError(t, err)

	xs, fs := affineDiag([]float64{0.9, 0.5, 0.1}, []float64{1, 1, 1}, 4)
	want := []Status{Warmup, Rejected, Accepted, Accepted}
	for i := range xs {
		f := append([]float64(nil), fs[i]...)
		require.Equal(t, want[i], a.Step(f, xs[i]), "call %d", i+1)
		if want[i] == Accepted {
			require.Greater(t, floats.Distance(f, fs[i], 2), 0.0)
		} else {
			require.Equal(t, fs[i], f)
		}
	}
}

func TestStepMaxNorm(t *testing.T) {
	xs, fs := affineDiag([]float64{0.9, 0.5, 0.1}, []float64{1, 1, 1}, 2)

	// With the default threshold the second step is accepted.
	a, err := New(3, Config{Memory: 1})
	require.NoError(t, err)
	a.Step(append([]float64(nil), fs[0]...), xs[0])
	require.Equal(t, Accepted, a.Step(append([]float64(nil), fs[1]...), xs[1]))

	// A tiny threshold must reject the same step and leave f at the
	// raw map value.
	var buf bytes.Buffer
	a, err = New(3, Config{Memory: 1, MaxNorm: 1e-300, Output: &buf})
	require.NoError(t, err)
	a.Step(append([]float64(nil), fs[0]...), xs[0])
	f := append([]float64(nil), fs[1]...)
	require.Equal(t, Rejected, a.Step(f, xs[1]))
	require.Equal(t, fs[1], f)
	require.Contains(t, buf.String(), "weight norm")
}

func TestRelease(t *testing.T) {
	a, err := New(5, Config{Memory: 2})
	require.NoError(t, err)
	a.Step([]float64{1, 2, 3, 4, 5}, []float64{5, 4, 3, 2, 1})

	a.Release()
	require.Nil(t, a.x)
	require.Nil(t, a.yHist.Data)
	require.Nil(t, a.m.Data)
	require.Nil(t, a.ipiv)

	// Releasing twice is harmless.
	a.Release()
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "Disabled", Disabled.String())
	require.Equal(t, "Warmup", Warmup.String())
	require.Equal(t, "Accepted", Accepted.String())
	require.Equal(t, "Rejected", Rejected.String())
	require.Equal(t, "Status(17)", Status(17).String())
}
