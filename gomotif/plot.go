package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotTrace writes a plot of the per-iteration consensus
// log-likelihood to a file; the format follows the file extension.
func plotTrace(trace []float64, fn string) error {
	p := plot.New()
	p.Title.Text = "consensus log-likelihood"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "lnL"

	pts := make(plotter.XYs, len(trace))
	for i, v := range trace {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	if err := plotutil.AddLines(p, "lnL", pts); err != nil {
		return err
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, fn)
}
