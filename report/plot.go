package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/notargets/gibbsmin/equilibrium"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Axis selects the independent variable of a sweep plot
type Axis uint8

const (
	Pressure Axis = iota
	Temperature
)

var ErrNoStates = errors.New("report: nothing to plot")

// SweepPlot draws the fractional amount of every species against pressure
// (GPa) or temperature (K)
func SweepPlot(states []*equilibrium.State, axis Axis) (*plot.Plot, error) {
	if len(states) == 0 {
		return nil, ErrNoStates
	}

	p := plot.New()
	p.Title.Text = "Equilibrium assemblage"
	p.Y.Label.Text = "Species fraction"
	p.Y.Min, p.Y.Max = 0, 1
	switch axis {
	case Temperature:
		p.X.Label.Text = "Temperature (K)"
	default:
		p.X.Label.Text = "Pressure (GPa)"
	}

	labels := states[0].Labels
	for i, label := range labels {
		xys := make(plotter.XYs, len(states))
		for k, st := range states {
			xys[k].X = st.Pressure / 1e9
			if axis == Temperature {
				xys[k].X = st.Temperature
			}
			xys[k].Y = st.Fractions[i]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("species %s: %w", label, err)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		p.Add(line)
		p.Legend.Add(label, line)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// SaveSweep writes a sweep plot to path; the format follows the extension
func SaveSweep(states []*equilibrium.State, axis Axis, path string) error {
	p, err := SweepPlot(states, axis)
	if err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// WriteSweep renders a sweep plot in format ("png", "svg", "pdf", ...) to w
func WriteSweep(w io.Writer, states []*equilibrium.State, axis Axis, format string) error {
	p, err := SweepPlot(states, axis)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
