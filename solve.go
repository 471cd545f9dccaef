// Copyright ©2018 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package anderson

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Map computes the fixed-point map, storing F(x) into dst. dst and x have
// the same length and must not alias.
type Map func(dst, x []float64)

// Settings holds various settings for a fixed-point solve.
type Settings struct {
	// X0 is an initial iterate.
	// If it is nil, the zero vector will
	// be used.
	// If it is not nil, the length of X0
	// must be equal to the dimension of
	// the problem.
	X0 []float64

	// Tolerance specifies the error
	// tolerance for the final iterate.
	// The iteration stops when the
	// residual norm
	//  |x - F(x)|
	// falls below it.
	// Tolerance must be smaller than one
	// and greater than the machine
	// epsilon.
	Tolerance float64

	// MaxIterations is the limit on the
	// number of iterations.
	// If it is zero, it will be set to
	// 100 times the dimension of the
	// problem.
	MaxIterations int

	// Accel, if not nil, is the
	// accelerator applied to every
	// evaluated pair (x, F(x)).
	// It must have been constructed with
	// the dimension of the problem.
	// If it is nil or disabled, the raw
	// fixed-point iteration is run.
	Accel *Accelerator
}

func defaultSettings(s *Settings, dim int) {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-8
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 100 * dim
	}
}

// Result holds the result of a fixed-point solve.
type Result struct {
	// X is the final iterate.
	X []float64
	// Stats holds the statistics of the
	// solve.
	Stats Stats
}

// Stats holds statistics about a fixed-point solve.
type Stats struct {
	// Iterations is the number of
	// completed iterations.
	Iterations int
	// MapEvals is the number of
	// evaluations of the fixed-point
	// map.
	MapEvals int
	// Accepted is the number of steps
	// whose extrapolation was applied.
	Accepted int
	// Rejected is the number of steps
	// whose extrapolation was rejected
	// by the safeguard.
	Rejected int
	// ResidualNorm is the final norm of
	// the residual x - F(x).
	ResidualNorm float64
	// StartTime is an approximate time
	// when the solve was started.
	StartTime time.Time
	// Runtime is an approximate duration
	// of the solve.
	Runtime time.Duration
}

// FixedPoint finds a fixed point of the map F by running the iteration
//
//	x_{k+1} = F(x_k)
//
// until the residual norm |x - F(x)| falls below the tolerance. If
// settings provide an Accelerator, every evaluated pair (x, F(x)) is
// handed to it and the extrapolated point is used as the next iterate
// whenever the accelerator accepts the step.
//
// The dimension of the problem is dim. It must match the length of the
// vectors passed to f.
//
// settings provide means for adjusting the iterative process. Zero values
// of the fields mean default values.
//
// FixedPoint returns an error if the iteration limit is reached before the
// residual norm falls below the tolerance. The returned Result is valid
// also in that case, holding the most recent iterate.
func FixedPoint(f Map, dim int, settings Settings) (Result, error) {
	stats := Stats{StartTime: time.Now()}

	if f == nil {
		panic("anderson: nil fixed-point map")
	}
	if dim <= 0 {
		panic("anderson: dimension not positive")
	}
	if settings.X0 != nil && len(settings.X0) != dim {
		panic("anderson: mismatched length of initial iterate")
	}
	if settings.Accel != nil && settings.Accel.dim != dim {
		panic("anderson: mismatched accelerator dimension")
	}

	defaultSettings(&settings, dim)
	if settings.Tolerance < dlamchE || 1 <= settings.Tolerance {
		panic("anderson: invalid tolerance")
	}

	x := make([]float64, dim)
	if settings.X0 != nil {
		copy(x, settings.X0)
	}
	fx := make([]float64, dim)
	r := make([]float64, dim)

	var err error
	for {
		f(fx, x)
		stats.MapEvals++
		floats.SubTo(r, x, fx) // r = x - F(x)
		stats.ResidualNorm = floats.Norm(r, 2)
		if stats.ResidualNorm < settings.Tolerance {
			break
		}
		if stats.Iterations == settings.MaxIterations {
			err = errors.New("anderson: iteration limit reached")
			break
		}
		if settings.Accel != nil {
			switch settings.Accel.Step(fx, x) {
			case Accepted:
				stats.Accepted++
			case Rejected:
				stats.Rejected++
			}
		}
		copy(x, fx)
		stats.Iterations++
	}

	stats.Runtime = time.Since(stats.StartTime)
	return Result{
		X:     x,
		Stats: stats,
	}, err
}

const dlamchE = 1.0 / (1 << 53)
