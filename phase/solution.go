package phase

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GasConstant in J/(mol K)
const GasConstant = 8.31446261815324

// compositionTolerance bounds |sum(x) - 1| and negative fractions accepted
// by SolidSolution.Evaluate.
const compositionTolerance = 1e-8

// MixingModel supplies the excess Gibbs energy of mixing for a solution with
// endmember mole fractions x at temperature T.
type MixingModel interface {
	ExcessGibbs(temperature float64, x []float64) (float64, error)
}

// IdealMixing is configurational entropy on Sites equivalent mixing sites:
// G_ex = Sites * R * T * sum(x_i ln x_i). Sites of zero means one.
type IdealMixing struct {
	Sites float64
}

func (m IdealMixing) ExcessGibbs(temperature float64, x []float64) (float64, error) {
	sites := m.Sites
	if sites == 0 {
		sites = 1
	}
	return sites * GasConstant * temperature * xlogx(x), nil
}

// SymmetricMixing is a regular solution model: ideal mixing plus pairwise
// interaction energies. W is upper triangular in the compact form used by
// mineral databases, W[i][j-i-1] holding W_ij for i < j (J/mol).
type SymmetricMixing struct {
	Sites float64
	W     [][]float64
}

func (m SymmetricMixing) ExcessGibbs(temperature float64, x []float64) (float64, error) {
	n := len(x)
	if len(m.W) != n-1 {
		return 0, fmt.Errorf("%w: %d interaction rows for %d endmembers", ErrComposition, len(m.W), n)
	}
	ideal, _ := IdealMixing{Sites: m.Sites}.ExcessGibbs(temperature, x)
	nonIdeal := 0.0
	for i := 0; i < n-1; i++ {
		if len(m.W[i]) != n-i-1 {
			return 0, fmt.Errorf("%w: interaction row %d has %d entries, want %d",
				ErrComposition, i, len(m.W[i]), n-i-1)
		}
		for j := i + 1; j < n; j++ {
			nonIdeal += m.W[i][j-i-1] * x[i] * x[j]
		}
	}
	return ideal + nonIdeal, nil
}

func xlogx(x []float64) (s float64) {
	for _, v := range x {
		if v > 0 {
			s += v * math.Log(v)
		}
	}
	return
}

// SolidSolution is a phase of variable composition between Endmembers.
// A nil Mixing model is mechanical mixing (no excess energy).
type SolidSolution struct {
	Label      string
	Endmembers []*Mineral
	Mixing     MixingModel
}

func (ss *SolidSolution) Name() string { return ss.Label }

func (ss *SolidSolution) Kind() Kind { return Solution }

func (ss *SolidSolution) Formulas() []Formula {
	f := make([]Formula, len(ss.Endmembers))
	for i, em := range ss.Endmembers {
		f[i] = em.Formula
	}
	return f
}

func (ss *SolidSolution) Labels() []string {
	l := make([]string, len(ss.Endmembers))
	for i, em := range ss.Endmembers {
		l[i] = em.Label
	}
	return l
}

// Evaluate returns sum(x_i G_i) + G_ex(x) at st
func (ss *SolidSolution) Evaluate(st State) (Properties, error) {
	x := st.Composition
	if len(ss.Endmembers) == 0 {
		return Properties{}, fmt.Errorf("%w: %s has no endmembers", ErrUnsupportedPhase, ss.Label)
	}
	if len(x) != len(ss.Endmembers) {
		return Properties{}, fmt.Errorf("%w: %s has %d endmembers, got %d fractions",
			ErrComposition, ss.Label, len(ss.Endmembers), len(x))
	}
	if math.Abs(floats.Sum(x)-1) > compositionTolerance || floats.Min(x) < -compositionTolerance {
		return Properties{}, fmt.Errorf("%w: %s fractions %v", ErrComposition, ss.Label, x)
	}

	props := Properties{EndmemberGibbs: make([]float64, len(x))}
	for i, em := range ss.Endmembers {
		p, err := em.Evaluate(State{Pressure: st.Pressure, Temperature: st.Temperature})
		if err != nil {
			return Properties{}, fmt.Errorf("solution %s: %w", ss.Label, err)
		}
		props.EndmemberGibbs[i] = p.Gibbs
	}
	props.Gibbs = floats.Dot(x, props.EndmemberGibbs)

	if ss.Mixing != nil {
		ex, err := ss.Mixing.ExcessGibbs(st.Temperature, x)
		if err != nil {
			return Properties{}, fmt.Errorf("solution %s: %w", ss.Label, err)
		}
		props.ExcessGibbs = ex
		props.Gibbs += ex
	}
	return props, nil
}

func (ss *SolidSolution) sealed() {}
