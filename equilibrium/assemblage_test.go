package equilibrium

import (
	"bytes"
	"errors"
	"io"
	"log"
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/gibbsmin/baseline"
	"github.com/notargets/gibbsmin/builder"
	"github.com/notargets/gibbsmin/phase"
	"github.com/notargets/gibbsmin/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func quiet() Config {
	return Config{Logger: log.New(io.Discard, "", 0)}
}

func mineral(label, formula string, g phase.GibbsFunc) *phase.Mineral {
	return &phase.Mineral{Label: label, Formula: phase.MustParseFormula(formula), Gibbs: g}
}

func constant(g float64) phase.GibbsFunc {
	return phase.ConstantVolume(g, 0, 0)
}

// enstatiteSystem is periclase + quartz = enstatite over Mg, O, Si
func enstatiteSystem(gEn phase.GibbsFunc) []phase.Phase {
	return []phase.Phase{
		mineral("per", "MgO", constant(-600e3)),
		mineral("qtz", "SiO2", constant(-900e3)),
		mineral("en", "MgSiO3", gEn),
	}
}

var enstatiteBulk = map[string]float64{"Mg": 0.2, "Si": 0.2, "O": 0.6}

func TestNewAssemblageErrors(t *testing.T) {
	oxides := []phase.Phase{mineral("per", "MgO", constant(0)), mineral("wus", "FeO", constant(0))}

	t.Run("UnknownElement", func(t *testing.T) {
		_, err := NewAssemblage(map[string]float64{"Mg": 1, "Si": 1}, oxides, quiet())
		assert.True(t, errors.Is(err, builder.ErrUnknownElement))
	})
	t.Run("UnsupportedPhase", func(t *testing.T) {
		_, err := NewAssemblage(map[string]float64{"Mg": 1}, []phase.Phase{oxides[0], nil}, quiet())
		assert.True(t, errors.Is(err, phase.ErrUnsupportedPhase))
	})
	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := NewAssemblage(map[string]float64{"Mg": -1, "O": 1}, oxides, quiet())
		assert.True(t, errors.Is(err, ErrComposition))
	})
	t.Run("Empty", func(t *testing.T) {
		_, err := NewAssemblage(map[string]float64{}, oxides, quiet())
		assert.True(t, errors.Is(err, ErrComposition))
	})
	t.Run("OxygenAbsent", func(t *testing.T) {
		// Projection leaves a negative Fe amount that no reaction can fix
		_, err := NewAssemblage(map[string]float64{"Mg": 0.9, "Fe": 0.1}, oxides, quiet())
		assert.True(t, errors.Is(err, baseline.ErrInfeasibleBaseline))
	})
}

func TestProjectedComposition(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Logger: log.New(&buf, "", 0)}
	oxides := []phase.Phase{mineral("per", "MgO", constant(-600e3)), mineral("wus", "FeO", constant(-250e3))}

	a, err := NewAssemblage(map[string]float64{"Mg": 0.9, "Fe": 0.1, "O": 1.5}, oxides, cfg)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "projecting")

	bulk := a.BulkMap()
	assert.InDelta(t, 0.1, bulk["Fe"], 1e-12)
	assert.InDelta(t, 0.4, bulk["Mg"], 1e-12)
	assert.InDelta(t, 0.5, bulk["O"], 1e-12)
	assert.Equal(t, 1, utils.Cols(a.LeftNullspace()))

	// Warned once, the projected composition is representable
	buf.Reset()
	st, err := a.SetState(1e5, 300)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "projecting")
	assert.InDeltaSlice(t, []float64{0.8, 0.2}, st.Fractions, 1e-12)
}

func TestSingleSpeciesOnly(t *testing.T) {
	phases := []phase.Phase{mineral("per", "MgO", constant(-600e3)), mineral("qtz", "SiO2", constant(-900e3))}
	a, err := NewAssemblage(enstatiteBulk, phases, quiet())
	require.NoError(t, err)
	require.Equal(t, 0, a.NumReactions())
	assert.Nil(t, a.Reactions())

	st, err := a.SetState(1e9, 1500)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Iterations)
	assert.Equal(t, 1, st.Evaluations)
	assert.True(t, st.Converged)
	assert.Empty(t, st.Reduced)
	assert.InDeltaSlice(t, []float64{0.2, 0.2}, st.Species, 1e-12)
	assert.InDelta(t, (0.2*-600e3+0.2*-900e3)/0.4, st.Gibbs, 1e-6)
	assert.Equal(t, []string{"per", "qtz"}, st.Labels)
}

func TestOneReactionBaseline(t *testing.T) {
	a, err := NewAssemblage(enstatiteBulk, enstatiteSystem(constant(-1550e3)), quiet())
	require.NoError(t, err)
	require.Equal(t, 1, a.NumReactions())
	assert.InDeltaSlice(t, []float64{1, 1, -1}, mat.Col(nil, 0, a.Reactions()), 1e-12)

	x0 := a.Baseline().RawVector().Data
	for _, v := range x0 {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	b := a.Bulk()
	assert.Less(t, utils.ResidualInf(a.Stoichiometry().Matrix, a.Baseline(), b), 1e-10)
	assert.Equal(t, []float64{0}, a.Reduced())
}

func TestConservationUnderReducedMoves(t *testing.T) {
	a, err := NewAssemblage(enstatiteBulk, enstatiteSystem(constant(-1550e3)), quiet())
	require.NoError(t, err)
	st := a.Stoichiometry()
	b := a.Bulk()

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		y := []float64{rng.NormFloat64()}
		x, err := a.SpeciesVector(y)
		require.NoError(t, err)
		assert.Less(t, utils.ResidualInf(st.Matrix, x, b), 1e-12)
	}

	_, err = a.SpeciesVector([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestGibbsPenaltyGate(t *testing.T) {
	calls := 0
	counting := func(p, T float64) float64 {
		calls++
		return -1550e3
	}
	a, err := NewAssemblage(enstatiteBulk, enstatiteSystem(counting), quiet())
	require.NoError(t, err)

	// y = 1 drives enstatite far negative
	g, err := a.Gibbs(1e5, 1000, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, DefaultPenalty, g)
	assert.Equal(t, 0, calls)

	// Within the feasibility tolerance is still evaluated
	x0 := a.Baseline().RawVector().Data
	g, err = a.Gibbs(1e5, 1000, []float64{x0[2] + 5e-7})
	require.NoError(t, err)
	assert.Less(t, g, 0.0)
	assert.Equal(t, 1, calls)

	_, err = a.Gibbs(1e5, 1000, nil)
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestEquilibriumAtBoundary(t *testing.T) {
	tests := []struct {
		name string
		gEn  float64
		want map[string]float64
	}{
		// Objective favours en when G_en < (G_per + G_qtz)/2 per mole of species
		{"EnstatiteStable", -1550e3, map[string]float64{"per": 0, "qtz": 0, "en": 1}},
		{"OxidesStable", -700e3, map[string]float64{"per": 0.5, "qtz": 0.5, "en": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAssemblage(enstatiteBulk, enstatiteSystem(constant(tt.gEn)), quiet())
			require.NoError(t, err)

			st, err := a.SetState(1e5, 1000)
			require.NoError(t, err)
			assert.Greater(t, st.Evaluations, 1)
			for label, f := range tt.want {
				assert.InDelta(t, f, st.Fraction(label), 1e-3, label)
			}
			for i, x := range st.Species {
				assert.Greater(t, x, -DefaultFeasibilityTolerance-1e-12)
				assert.GreaterOrEqual(t, st.Fractions[i], 0.0)
			}
			assert.Less(t, utils.ResidualInf(a.Stoichiometry().Matrix, mat.NewVecDense(3, st.Species), a.Bulk()), 1e-10)
		})
	}
}

// ferropericlase solid solution coexisting with pure periclase
func periclaseSystem() []phase.Phase {
	fp := &phase.SolidSolution{
		Label: "fp",
		Endmembers: []*phase.Mineral{
			mineral("per_fp", "MgO", constant(-600e3)),
			mineral("wus", "FeO", constant(-250e3)),
		},
		Mixing: phase.IdealMixing{},
	}
	return []phase.Phase{fp, mineral("per", "MgO", constant(-601e3))}
}

var periclaseBulk = map[string]float64{"Mg": 0.4, "Fe": 0.1, "O": 0.5}

func TestGibbsPartitionsSolidSolution(t *testing.T) {
	a, err := NewAssemblage(periclaseBulk, periclaseSystem(), quiet())
	require.NoError(t, err)
	require.Equal(t, 1, a.NumReactions())
	assert.InDeltaSlice(t, []float64{0.2, 0.1, 0.2}, a.Baseline().RawVector().Data, 1e-12)

	T := 1000.0
	mix := phase.GasConstant * T * (2.0/3*math.Log(2.0/3) + 1.0/3*math.Log(1.0/3))
	gss := 2.0/3*-600e3 + 1.0/3*-250e3 + mix
	want := gss*0.3/0.5 + -601e3*0.2/0.5

	g, err := a.Gibbs(1e5, T, []float64{0})
	require.NoError(t, err)
	assert.InDelta(t, want, g, 1e-6)

	amounts, err := a.PhaseAmounts([]float64{0})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, "fp", amounts[0].Name)
	assert.InDelta(t, 0.3, amounts[0].Amount, 1e-12)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, amounts[0].Composition, 1e-12)
	assert.InDelta(t, 0.2, amounts[1].Amount, 1e-12)
	assert.Nil(t, amounts[1].Composition)
}

func TestSolidSolutionInteriorEquilibrium(t *testing.T) {
	a, err := NewAssemblage(periclaseBulk, periclaseSystem(), quiet())
	require.NoError(t, err)

	// μ_MgO in fp equals pure periclase when RT ln x_Mg = -1 kJ
	T := 300.0
	xMg := math.Exp(-1000 / (phase.GasConstant * T))
	perFp := 0.1 * xMg / (1 - xMg)

	st, err := a.SetState(1e5, T)
	require.NoError(t, err)
	assert.InDelta(t, perFp, st.Species[0], 1e-4)
	assert.InDelta(t, 0.1, st.Species[1], 1e-12)
	assert.InDelta(t, 0.4-perFp, st.Species[2], 1e-4)
	assert.InDelta(t, 1.0, st.Fractions[0]+st.Fractions[1]+st.Fractions[2], 1e-12)
}

func TestWarmStartAndClone(t *testing.T) {
	a, err := NewAssemblage(periclaseBulk, periclaseSystem(), quiet())
	require.NoError(t, err)

	first, err := a.SetState(1e5, 300)
	require.NoError(t, err)
	assert.Equal(t, first.Reduced, a.Reduced())
	assert.Same(t, first, a.Last())

	c := a.Clone()
	_, err = c.SetState(1e5, 450)
	require.NoError(t, err)
	assert.Equal(t, first.Reduced, a.Reduced(), "clone must not share the reduced vector")

	second, err := a.SetState(1e5, 300)
	require.NoError(t, err)
	assert.InDeltaSlice(t, first.Reduced, second.Reduced, 1e-4)
}

func TestSweepAcrossReaction(t *testing.T) {
	// G_en rises with pressure and crosses the oxide mean at 1 GPa
	phases := []phase.Phase{
		mineral("per", "MgO", constant(-750e3)),
		mineral("qtz", "SiO2", constant(-750e3)),
		mineral("en", "MgSiO3", phase.ConstantVolume(-760e3, 0, 1e-5)),
	}
	a, err := NewAssemblage(enstatiteBulk, phases, quiet())
	require.NoError(t, err)

	states, err := a.Sweep([]Condition{{0, 1000}, {0.5e9, 1000}, {2e9, 1000}, {3e9, 1000}})
	require.NoError(t, err)
	require.Len(t, states, 4)
	assert.InDelta(t, 1.0, states[0].Fraction("en"), 1e-3)
	assert.InDelta(t, 1.0, states[1].Fraction("en"), 1e-3)
	assert.InDelta(t, 0.0, states[2].Fraction("en"), 1e-3)
	assert.InDelta(t, 0.5, states[3].Fraction("per"), 1e-3)
}

func TestPhaseErrorsPropagate(t *testing.T) {
	phases := enstatiteSystem(nil)
	a, err := NewAssemblage(enstatiteBulk, phases, quiet())
	require.NoError(t, err)

	_, err = a.SetState(1e5, 1000)
	assert.True(t, errors.Is(err, phase.ErrNoModel))

	// The assemblage stays usable
	assert.Equal(t, []float64{0}, a.Reduced())
}

func TestAssemblageReport(t *testing.T) {
	phases := []phase.Phase{mineral("per", "MgO", constant(-600e3)), mineral("qtz", "SiO2", constant(-900e3))}

	t.Run("EveryCall", func(t *testing.T) {
		var buf bytes.Buffer
		a, err := NewAssemblage(enstatiteBulk, phases, Config{Logger: log.New(&buf, "", 0)})
		require.NoError(t, err)

		_, err = a.SetState(1e5, 1000)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "per")
		assert.Contains(t, buf.String(), "0.500000")
	})
	t.Run("Quiet", func(t *testing.T) {
		var buf bytes.Buffer
		a, err := NewAssemblage(enstatiteBulk, phases, Config{Logger: log.New(&buf, "", 0), Quiet: true})
		require.NoError(t, err)

		st, err := a.SetState(1e5, 1000)
		require.NoError(t, err)
		assert.Empty(t, buf.String())
		assert.Len(t, st.Amounts(), 2)
	})
}

// mantleSystem has three independent reactions among fo, fp, en, mpv and qtz
func mantleSystem() []phase.Phase {
	cv := func(label, formula string, H0, S0, V0 float64) *phase.Mineral {
		return mineral(label, formula, phase.ConstantVolume(H0, S0, V0))
	}
	fp := &phase.SolidSolution{
		Label: "fp",
		Endmembers: []*phase.Mineral{
			cv("per", "MgO", -601.6e3, 26.9, 1.125e-5),
			cv("wus", "FeO", -265.0e3, 58.0, 1.206e-5),
		},
		Mixing: phase.SymmetricMixing{Sites: 1, W: [][]float64{{13e3}}},
	}
	return []phase.Phase{
		cv("fo", "Mg2SiO4", -2172.2e3, 95.1, 4.366e-5),
		fp,
		cv("en", "MgSiO3", -1545.0e3, 66.3, 3.133e-5),
		cv("mpv", "MgSiO3", -1443.0e3, 62.6, 2.445e-5),
		cv("qtz", "SiO2", -910.7e3, 41.4, 2.269e-5),
	}
}

var mantleBulk = map[string]float64{"Mg": 1.8, "Fe": 0.2, "Si": 1.4, "O": 4.8}

func TestMultiReactionEquilibrium(t *testing.T) {
	// en = mpv crosses near 15.7 GPa at 1600 K; fo, wus and one MgSiO3
	// polymorph are stable on either side
	low := map[string]float64{"fo": 0.25, "per": 0, "wus": 0.125, "en": 0.625, "mpv": 0, "qtz": 0}
	high := map[string]float64{"fo": 0.25, "per": 0, "wus": 0.125, "en": 0, "mpv": 0.625, "qtz": 0}

	check := func(t *testing.T, a *Assemblage, st *State, want map[string]float64) {
		assert.True(t, st.Converged)
		for label, f := range want {
			assert.InDelta(t, f, st.Fraction(label), 2e-3, label)
		}
		for i, f := range st.Fractions {
			assert.GreaterOrEqual(t, f, 0.0, st.Labels[i])
			assert.Greater(t, st.Species[i], -8.2*DefaultFeasibilityTolerance-1e-12, st.Labels[i])
		}
		assert.InDelta(t, 1.0, floats.Sum(st.Fractions), 1e-12)
		x := mat.NewVecDense(a.NumSpecies(), st.Species)
		assert.Less(t, utils.ResidualInf(a.Stoichiometry().Matrix, x, a.Bulk()), 1e-9)
	}

	t.Run("ColdStart", func(t *testing.T) {
		a, err := NewAssemblage(mantleBulk, mantleSystem(), quiet())
		require.NoError(t, err)
		require.Equal(t, 3, a.NumReactions())
		assert.Equal(t, 1, utils.Cols(a.LeftNullspace()))

		st, err := a.SetState(0, 1600)
		require.NoError(t, err)
		check(t, a, st, low)
	})
	t.Run("Sweep", func(t *testing.T) {
		a, err := NewAssemblage(mantleBulk, mantleSystem(), quiet())
		require.NoError(t, err)

		tests := []struct {
			pressure float64
			want     map[string]float64
		}{
			{0, low},
			{10e9, low},
			{20e9, high},
			{30e9, high},
		}
		for _, tt := range tests {
			st, err := a.SetState(tt.pressure, 1600)
			require.NoError(t, err)
			check(t, a, st, tt.want)
		}
	})
}

func TestFeasibilityScalesWithBulk(t *testing.T) {
	T := 300.0
	xMg := math.Exp(-1000 / (phase.GasConstant * T))

	for _, scale := range []float64{1, 1e-3, 1e-6} {
		bulk := make(map[string]float64, len(periclaseBulk))
		for e, v := range periclaseBulk {
			bulk[e] = v * scale
		}
		a, err := NewAssemblage(bulk, periclaseSystem(), quiet())
		require.NoError(t, err)
		assert.InDelta(t, DefaultFeasibilityTolerance*scale, a.cfg.FeasibilityTolerance, 1e-18)

		st, err := a.SetState(1e5, T)
		require.NoError(t, err)
		perFp := 0.1 * xMg / (1 - xMg)
		assert.InDelta(t, perFp, st.Species[0]/scale, 1e-4)
		for _, f := range st.Fractions {
			assert.GreaterOrEqual(t, f, 0.0)
			assert.LessOrEqual(t, f, 1.0)
		}
	}

	var buf bytes.Buffer
	bulk := map[string]float64{"Mg": 0.4e-6, "Fe": 0.1e-6, "O": 0.5e-6}
	_, err := NewAssemblage(bulk, periclaseSystem(), Config{Logger: log.New(&buf, "", 0), FeasibilityTolerance: 1e-6})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "feasibility tolerance")
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultPenalty, c.Penalty)
	assert.Zero(t, c.FeasibilityTolerance)
	assert.Equal(t, DefaultFeasibilityTolerance*8, c.feasibility(8).FeasibilityTolerance)
	assert.Equal(t, DefaultSimplexSize, c.SimplexSize)
	assert.Equal(t, baseline.DefaultTolerance, c.Tolerance)
	assert.Equal(t, DefaultMaxIterations, c.MaxIterations)
	assert.NotNil(t, c.Logger)

	bc := c.baselineConfig([]string{"Mg"})
	assert.Equal(t, c.MaxCorrections, bc.MaxCorrections)
	assert.Equal(t, []string{"Mg"}, bc.Labels)
}
