package equilibrium

// State is the equilibrium found by SetState
type State struct {
	Pressure    float64 // Pa
	Temperature float64 // K
	Gibbs       float64 // Molar Gibbs energy of the assemblage, J/mol

	Reduced   []float64 // y
	Species   []float64 // x0 + R·y, may dip to -FeasibilityTolerance
	Fractions []float64 // Species clamped at zero and normalised to unit sum
	Labels    []string  // species labels, column order

	Iterations  int
	Evaluations int
	Converged   bool // false when the search hit an iteration or evaluation cap
}

// SpeciesAmount is one line of an assemblage report
type SpeciesAmount struct {
	Label    string
	Fraction float64
}

// PhaseAmount is the total amount of a phase and, for solid solutions, its
// endmember mole fractions
type PhaseAmount struct {
	Name        string
	Amount      float64
	Composition []float64
}

// Amounts pairs species labels with their fractional amounts
func (s *State) Amounts() []SpeciesAmount {
	out := make([]SpeciesAmount, len(s.Fractions))
	for i, f := range s.Fractions {
		out[i] = SpeciesAmount{Label: s.Labels[i], Fraction: f}
	}
	return out
}

// Fraction returns the fractional amount of the species with label, zero if
// the label is unknown
func (s *State) Fraction(label string) float64 {
	for i, l := range s.Labels {
		if l == label {
			return s.Fractions[i]
		}
	}
	return 0
}
