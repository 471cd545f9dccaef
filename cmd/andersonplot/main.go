// Copyright ©2018 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command andersonplot compares plain and Anderson-accelerated Richardson
// iteration on a 1-D Poisson problem and writes a convergence plot to
// anderson.png.
package main

import (
	"log"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/vladimir-ch/anderson"
	"github.com/vladimir-ch/anderson/internal/affine"
)

const (
	n     = 50
	omega = 0.4
	iters = 500
	mem   = 10
)

func main() {
	a := affine.Poisson1D(n)
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}
	f := affine.Richardson(a, b, omega)

	plain := history(f, nil)

	accel, err := anderson.New(n, anderson.Config{Memory: mem, Output: log.Writer()})
	if err != nil {
		log.Fatal(err)
	}
	accelerated := history(f, accel)

	p := plot.New()
	p.Title.Text = "Richardson iteration on 1-D Poisson"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "residual norm"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	err = plotutil.AddLinePoints(p,
		"plain", plain,
		"anderson", accelerated,
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, "anderson.png"); err != nil {
		log.Fatal(err)
	}
}

// history runs the fixed-point iteration and records the residual norm of
// every iterate, driving the accelerator directly the way a host solver
// would.
func history(f func(dst, x []float64), accel *anderson.Accelerator) plotter.XYs {
	x := make([]float64, n)
	fx := make([]float64, n)
	r := make([]float64, n)
	var pts plotter.XYs
	for k := 0; k < iters; k++ {
		f(fx, x)
		floats.SubTo(r, x, fx)
		nrm := floats.Norm(r, 2)
		if nrm == 0 {
			break
		}
		pts = append(pts, plotter.XY{X: float64(k), Y: nrm})
		if nrm < 1e-12 {
			break
		}
		if accel != nil {
			accel.Step(fx, x)
		}
		copy(x, fx)
	}
	return pts
}
