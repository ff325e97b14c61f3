package equilibrium

import (
	"fmt"
	"math"

	"github.com/notargets/gibbsmin/phase"
	"github.com/notargets/gibbsmin/utils"
	"gonum.org/v1/gonum/floats"
)

// Gibbs is the objective of the search: the molar Gibbs energy of the
// assemblage with species amounts x0 + R·y at pressure and temperature.
//
// Each phase contributes its molar Gibbs energy weighted by its share of the
// total amount. Points with any amount below -FeasibilityTolerance return
// Penalty without evaluating a phase.
func (a *Assemblage) Gibbs(pressure, temperature float64, reduced []float64) (float64, error) {
	if len(reduced) != a.NumReactions() {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(reduced), a.NumReactions())
	}
	x := a.speciesVector(reduced)

	if floats.Min(x) < -a.cfg.FeasibilityTolerance {
		return a.cfg.Penalty, nil
	}
	total := floats.Sum(x)
	if total <= 0 {
		return a.cfg.Penalty, nil
	}

	offsets := a.stoich.Offsets
	gibbs := 0.0
	for i, p := range a.phases {
		block := x[offsets[i]:offsets[i+1]]
		g, weight, err := a.phaseGibbs(p, block, pressure, temperature)
		if err != nil {
			return 0, err
		}
		gibbs += g * weight / total
	}

	if math.IsNaN(gibbs) || math.IsInf(gibbs, 0) {
		return 0, fmt.Errorf("%w at P = %g, T = %g", ErrNonFinite, pressure, temperature)
	}
	return gibbs, nil
}

// phaseGibbs evaluates one phase given its block of species amounts and
// returns its molar Gibbs energy and total amount.
func (a *Assemblage) phaseGibbs(p phase.Phase, block []float64, pressure, temperature float64) (g, amount float64, err error) {
	switch v := p.(type) {
	case *phase.Mineral:
		props, err := v.Evaluate(phase.State{Pressure: pressure, Temperature: temperature})
		if err != nil {
			return 0, 0, err
		}
		return props.Gibbs, block[0], nil

	case *phase.SolidSolution:
		amount = floats.Sum(block)
		if amount <= a.cfg.Tolerance {
			// Absent phase, its composition is undefined
			return 0, 0, nil
		}
		comp := make([]float64, len(block))
		for j, n := range block {
			comp[j] = math.Max(n, 0)
		}
		if !utils.NormalizeSum(comp) {
			return 0, 0, nil
		}
		props, err := v.Evaluate(phase.State{Pressure: pressure, Temperature: temperature, Composition: comp})
		if err != nil {
			return 0, 0, err
		}
		return props.Gibbs, amount, nil

	default:
		return 0, 0, fmt.Errorf("%w: %T", phase.ErrUnsupportedPhase, p)
	}
}

// PhaseAmounts returns the total amount and composition of each phase for
// species amounts x0 + R·y. Compositions of absent solutions are nil.
func (a *Assemblage) PhaseAmounts(reduced []float64) ([]PhaseAmount, error) {
	if len(reduced) != a.NumReactions() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(reduced), a.NumReactions())
	}
	x := a.speciesVector(reduced)
	offsets := a.stoich.Offsets
	out := make([]PhaseAmount, len(a.phases))
	for i, p := range a.phases {
		block := x[offsets[i]:offsets[i+1]]
		pa := PhaseAmount{Name: p.Name(), Amount: floats.Sum(block)}
		if p.Kind() == phase.Solution && pa.Amount > a.cfg.Tolerance {
			pa.Composition = append([]float64(nil), block...)
			floats.Scale(1/pa.Amount, pa.Composition)
		}
		out[i] = pa
	}
	return out, nil
}
