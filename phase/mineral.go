package phase

import "fmt"

// GibbsFunc is a species equation of state reduced to what the solver needs:
// molar Gibbs energy (J/mol) at pressure (Pa) and temperature (K).
type GibbsFunc func(pressure, temperature float64) float64

// ConstantVolume returns G = H0 - T*S0 + P*V0, a species with constant
// enthalpy, entropy and molar volume.
func ConstantVolume(H0, S0, V0 float64) GibbsFunc {
	return func(pressure, temperature float64) float64 {
		return H0 - temperature*S0 + pressure*V0
	}
}

// Mineral is a single species phase with a fixed formula
type Mineral struct {
	Label   string
	Formula Formula
	Gibbs   GibbsFunc
}

// NewMineral parses formula and builds a Mineral
func NewMineral(label, formula string, g GibbsFunc) (*Mineral, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return nil, fmt.Errorf("mineral %s: %w", label, err)
	}
	return &Mineral{Label: label, Formula: f, Gibbs: g}, nil
}

func (m *Mineral) Name() string { return m.Label }

func (m *Mineral) Kind() Kind { return SingleSpecies }

func (m *Mineral) Formulas() []Formula { return []Formula{m.Formula} }

func (m *Mineral) Labels() []string { return []string{m.Label} }

// Evaluate ignores st.Composition
func (m *Mineral) Evaluate(st State) (Properties, error) {
	if m.Gibbs == nil {
		return Properties{}, fmt.Errorf("%w: %s", ErrNoModel, m.Label)
	}
	g := m.Gibbs(st.Pressure, st.Temperature)
	return Properties{Gibbs: g, EndmemberGibbs: []float64{g}}, nil
}

func (m *Mineral) sealed() {}
