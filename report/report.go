// Package report renders equilibrium results for people: assemblage tables,
// the reaction basis and plots of sweeps.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/notargets/gibbsmin/equilibrium"
	"github.com/notargets/gibbsmin/utils"
	"gonum.org/v1/gonum/mat"
)

// WriteAssemblage prints one line per species with its fractional amount
func WriteAssemblage(w io.Writer, st *equilibrium.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "P = %g Pa\tT = %g K\tG = %.3f J/mol\n", st.Pressure, st.Temperature, st.Gibbs)
	fmt.Fprintln(tw, "species\tfraction\t")
	for _, s := range st.Amounts() {
		fmt.Fprintf(tw, "%s\t%.6f\t\n", s.Label, s.Fraction)
	}
	return tw.Flush()
}

// WritePhases prints phase totals and solid solution compositions
func WritePhases(w io.Writer, a *equilibrium.Assemblage, st *equilibrium.State) error {
	amounts, err := a.PhaseAmounts(st.Reduced)
	if err != nil {
		return err
	}
	total := 0.0
	for _, pa := range amounts {
		total += pa.Amount
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "phase\tfraction\tcomposition\t")
	for i, pa := range amounts {
		comp := "-"
		if pa.Composition != nil {
			labels := a.Phases()[i].Labels()
			parts := make([]string, len(labels))
			for j, l := range labels {
				parts[j] = fmt.Sprintf("%s:%.4f", l, pa.Composition[j])
			}
			comp = strings.Join(parts, " ")
		}
		frac := 0.0
		if total > 0 {
			frac = pa.Amount / total
		}
		fmt.Fprintf(tw, "%s\t%.6f\t%s\t\n", pa.Name, frac, comp)
	}
	return tw.Flush()
}

// WriteReactions prints each column of R as a balanced reaction
func WriteReactions(w io.Writer, labels []string, R *mat.Dense) error {
	for j := 0; j < utils.Cols(R); j++ {
		if _, err := fmt.Fprintln(w, FormatReaction(labels, mat.Col(nil, j, R), 1e-10)); err != nil {
			return err
		}
	}
	return nil
}

// FormatReaction writes coefficients as "a + 2 b = c", positive coefficients
// on the left. Coefficients below tol are omitted.
func FormatReaction(labels []string, coeffs []float64, tol float64) string {
	var left, right []string
	for i, c := range coeffs {
		if math.Abs(c) < tol {
			continue
		}
		term := labels[i]
		if a := math.Abs(c); math.Abs(a-1) > tol {
			term = strconv.FormatFloat(a, 'g', 4, 64) + " " + term
		}
		if c > 0 {
			left = append(left, term)
		} else {
			right = append(right, term)
		}
	}
	return side(left) + " = " + side(right)
}

func side(terms []string) string {
	if len(terms) == 0 {
		return "0"
	}
	return strings.Join(terms, " + ")
}
