package phase

import "errors"

// Kind distinguishes the phase variants the solver understands
type Kind uint8

const (
	SingleSpecies Kind = iota
	Solution
)

func (k Kind) String() string {
	switch k {
	case SingleSpecies:
		return "mineral"
	case Solution:
		return "solid solution"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupportedPhase is returned for nil phases or phase values outside
	// the closed set {*Mineral, *SolidSolution}.
	ErrUnsupportedPhase = errors.New("phase: unsupported phase kind")

	// ErrNoModel indicates a species without a Gibbs energy function.
	ErrNoModel = errors.New("phase: no gibbs model")

	// ErrComposition is returned when a composition vector does not match the
	// endmember count or does not sum to one.
	ErrComposition = errors.New("phase: invalid composition")

	// ErrFormula is returned by ParseFormula for malformed input.
	ErrFormula = errors.New("phase: invalid formula")
)

// State is the thermodynamic condition a phase is evaluated at.
// Composition holds endmember mole fractions for solid solutions and is
// ignored (may be nil) for single species.
type State struct {
	Pressure    float64 // Pa
	Temperature float64 // K
	Composition []float64
}

// Properties is the result of evaluating a phase at a State
type Properties struct {
	Gibbs float64 // Molar Gibbs energy, J/mol

	// Per-endmember standard state Gibbs energies, one entry for a mineral
	EndmemberGibbs []float64

	// Excess (mixing) contribution, zero for minerals
	ExcessGibbs float64
}

// Phase is a mineral or a solid solution. The set of implementations is
// closed: only types in this package satisfy it.
type Phase interface {
	Name() string
	Kind() Kind

	// Formulas returns one formula per species column the phase contributes,
	// in endmember order.
	Formulas() []Formula

	// Labels returns one species label per formula
	Labels() []string

	// Evaluate is pure: it does not retain st or mutate the phase.
	Evaluate(st State) (Properties, error)

	sealed()
}

// Species returns the number of stoichiometric columns p contributes
func Species(p Phase) int {
	return len(p.Formulas())
}

// Validate checks that p is one of the supported variants
func Validate(p Phase) error {
	switch v := p.(type) {
	case *Mineral:
		if v == nil {
			return ErrUnsupportedPhase
		}
	case *SolidSolution:
		if v == nil || len(v.Endmembers) == 0 {
			return ErrUnsupportedPhase
		}
		for _, em := range v.Endmembers {
			if em == nil {
				return ErrUnsupportedPhase
			}
		}
	default:
		return ErrUnsupportedPhase
	}
	return nil
}
