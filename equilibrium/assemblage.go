// Package equilibrium finds the mixture of species that minimises Gibbs
// energy for a fixed bulk composition.
//
// Species amounts are parameterised as x(y) = x0 + R·y where x0 is a
// non-negative baseline with S·x0 = b and the columns of R are element
// conserving reactions (S·R = 0). Every y therefore conserves the bulk
// composition and the search over y is unconstrained; negative amounts are
// rejected by a penalty in the objective.
package equilibrium

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/gibbsmin/baseline"
	"github.com/notargets/gibbsmin/builder"
	"github.com/notargets/gibbsmin/nullspace"
	"github.com/notargets/gibbsmin/phase"
	"github.com/notargets/gibbsmin/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	ErrComposition = errors.New("equilibrium: invalid composition")
	ErrDimension   = errors.New("equilibrium: reduced vector has wrong length")
	ErrNonFinite   = errors.New("equilibrium: non-finite gibbs energy")
	ErrMinimize    = errors.New("equilibrium: minimization failed")
)

// Assemblage is a fixed bulk composition distributed over a fixed list of
// phases. The matrices are computed once by NewAssemblage; SetState moves the
// reduced vector. An Assemblage is not safe for concurrent use, use Clone to
// give each goroutine its own.
type Assemblage struct {
	phases []phase.Phase
	stoich *builder.Stoichiometry

	right    *mat.Dense // N x K sparsified reactions, nil when K = 0
	left     *mat.Dense // E x M, nil when M = 0
	pinv     *mat.Dense // N x E
	resolver *baseline.Resolver

	bulk     *mat.VecDense // b, after any projection
	baseline *mat.VecDense // x0
	reduced  []float64     // y, warm start for the next SetState

	last *State
	cfg  Config
}

// Condition is one pressure (Pa) and temperature (K) pair
type Condition struct {
	Pressure, Temperature float64
}

// NewAssemblage builds the stoichiometric system of phases and resolves a
// baseline for composition, a map from element symbol to molar amount.
// Elements absent from every phase are rejected.
func NewAssemblage(composition map[string]float64, phases []phase.Phase, cfg Config) (*Assemblage, error) {
	cfg = cfg.withDefaults()

	total := 0.0
	for e, v := range composition {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s = %g", ErrComposition, e, v)
		}
		total += v
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: no positive amounts", ErrComposition)
	}

	st, err := builder.Build(phases)
	if err != nil {
		return nil, err
	}
	b, err := st.BulkVector(composition)
	if err != nil {
		return nil, err
	}

	cfg = cfg.feasibility(floats.Sum(b.RawVector().Data))

	dec, err := nullspace.Decompose(st.Matrix, cfg.SingularTolerance)
	if err != nil {
		return nil, err
	}

	a := &Assemblage{
		phases: append([]phase.Phase(nil), phases...),
		stoich: st,
		right:  nullspace.Sparsify(dec.Right(), cfg.SingularTolerance),
		left:   dec.Left(),
		pinv:   dec.PseudoInverse(),
		bulk:   b,
		cfg:    cfg,
	}
	a.resolver = baseline.NewResolver(st.Matrix, a.pinv, a.left, a.right, cfg.baselineConfig(st.Elements))

	if err = a.resolveBaseline(); err != nil {
		return nil, err
	}
	return a, nil
}

// resolveBaseline recomputes x0. The reduced vector is kept as a warm start
// when x0 is unchanged and reset to the origin otherwise.
func (a *Assemblage) resolveBaseline() error {
	res, err := a.resolver.Resolve(a.bulk)
	if err != nil {
		return err
	}
	if res.Projected {
		a.bulk = res.Bulk
	}
	same := a.baseline != nil &&
		floats.EqualApprox(a.baseline.RawVector().Data, res.Baseline.RawVector().Data, a.cfg.Tolerance)
	if !same || len(a.reduced) != len(res.Reduced) {
		a.reduced = res.Reduced
	}
	a.baseline = res.Baseline
	return nil
}

// SetState finds the equilibrium assemblage at pressure and temperature,
// starting the search from the previous result. A failed baseline aborts this
// call only.
func (a *Assemblage) SetState(pressure, temperature float64) (*State, error) {
	if err := a.resolveBaseline(); err != nil {
		return nil, err
	}

	st := &State{
		Pressure:    pressure,
		Temperature: temperature,
		Labels:      a.stoich.Labels,
	}

	if a.NumReactions() == 0 {
		// Only one point conserves the bulk composition
		g, err := a.Gibbs(pressure, temperature, a.reduced)
		if err != nil {
			return nil, err
		}
		st.Gibbs = g
		st.Evaluations = 1
		st.Converged = true
		a.finish(st, a.reduced)
		return st, nil
	}

	y, g, stats, err := a.minimize(pressure, temperature)
	if err != nil {
		return nil, err
	}
	st.Gibbs = g
	st.Iterations = stats.iterations
	st.Evaluations = stats.evaluations
	st.Converged = stats.converged
	a.finish(st, y)
	return st, nil
}

func (a *Assemblage) finish(st *State, y []float64) {
	a.reduced = append([]float64(nil), y...)
	st.Reduced = append([]float64(nil), y...)
	st.Species = a.speciesVector(y)
	st.Fractions = append([]float64(nil), st.Species...)
	for i, v := range st.Fractions {
		// Inside the feasibility band, reported as absent
		if v < 0 && v >= -a.cfg.FeasibilityTolerance {
			st.Fractions[i] = 0
		}
	}
	if !utils.NormalizeSum(st.Fractions) {
		floats.Scale(0, st.Fractions)
	}
	a.last = st

	if !a.cfg.Quiet {
		a.cfg.Logger.Printf("P = %g Pa, T = %g K, G = %.6f J/mol", st.Pressure, st.Temperature, st.Gibbs)
		for _, s := range st.Amounts() {
			a.cfg.Logger.Printf("  %-12s %.6f", s.Label, s.Fraction)
		}
	}
}

type searchStats struct {
	iterations, evaluations int
	converged               bool
}

// maxStepHalvings bounds the search for a feasible simplex vertex
const maxStepHalvings = 40

// minimize runs the simplex search over the reduced coordinates. A simplex
// pressed against the penalty wall collapses before reaching the minimum, so
// the search is restarted from the best point with a fresh simplex until a
// restart no longer lowers G by ConvergenceTolerance.
func (a *Assemblage) minimize(pressure, temperature float64) ([]float64, float64, searchStats, error) {
	var (
		evalErr error
		stats   searchStats
	)
	objective := func(y []float64) float64 {
		g, err := a.Gibbs(pressure, temperature, y)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return a.cfg.Penalty
		}
		return g
	}
	problem := optimize.Problem{Func: objective}

	y := append([]float64(nil), a.reduced...)
	g := objective(y)
	stats.evaluations++
	if evalErr != nil {
		return nil, 0, stats, evalErr
	}

	for round := 0; ; round++ {
		iterations := a.cfg.MaxIterations - stats.iterations
		evaluations := a.cfg.MaxEvaluations - stats.evaluations
		if iterations <= 0 || evaluations <= 0 {
			a.cfg.Logger.Printf("gibbs minimization stopped at P = %g, T = %g: search budget spent", pressure, temperature)
			break
		}

		vertices, values, n := a.feasibleSimplex(objective, y, g)
		stats.evaluations += n
		if evalErr != nil {
			return nil, 0, stats, evalErr
		}

		settings := &optimize.Settings{
			InitValues:      &optimize.Location{F: g},
			MajorIterations: iterations,
			FuncEvaluations: evaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   a.cfg.ConvergenceTolerance,
				Iterations: a.cfg.ConvergenceIterations,
			},
		}
		method := &optimize.NelderMead{InitialVertices: vertices, InitialValues: values}

		result, err := optimize.Minimize(problem, y, settings, method)
		if evalErr != nil {
			return nil, 0, stats, evalErr
		}
		if result == nil {
			return nil, 0, stats, fmt.Errorf("%w: %v", ErrMinimize, err)
		}
		stats.iterations += result.Stats.MajorIterations
		stats.evaluations += result.Stats.FuncEvaluations

		limited := result.Status == optimize.IterationLimit || result.Status == optimize.FunctionEvaluationLimit
		if err != nil && !limited {
			return nil, 0, stats, fmt.Errorf("%w: %v", ErrMinimize, err)
		}

		improvement := g - result.F
		if result.F < g {
			y, g = append(y[:0], result.X...), result.F
		}
		if limited {
			// Keep the best point found, the cap is the only runtime bound
			a.cfg.Logger.Printf("gibbs minimization stopped at P = %g, T = %g: %v", pressure, temperature, result.Status)
			break
		}
		if round > 0 && improvement < a.cfg.ConvergenceTolerance {
			stats.converged = true
			break
		}
	}

	if g >= a.cfg.Penalty {
		return nil, 0, stats, fmt.Errorf("%w: no feasible point found", ErrMinimize)
	}
	return y, g, stats, nil
}

// feasibleSimplex builds a simplex with y as one vertex and one step along each
// reduced axis. Each step tries +SimplexSize then -SimplexSize, halving until
// the vertex passes the feasibility gate; an axis with no feasible step keeps
// +SimplexSize.
func (a *Assemblage) feasibleSimplex(f func([]float64) float64, y []float64, g float64) ([][]float64, []float64, int) {
	dim := len(y)
	vertices := make([][]float64, 0, dim+1)
	values := make([]float64, 0, dim+1)
	evaluations := 0

	for j := 0; j < dim; j++ {
		var vertex []float64
		value := a.cfg.Penalty
	Search:
		for step, h := a.cfg.SimplexSize, 0; h < maxStepHalvings; step, h = step/2, h+1 {
			for _, s := range [2]float64{step, -step} {
				v := append([]float64(nil), y...)
				v[j] += s
				fv := f(v)
				evaluations++
				if fv < a.cfg.Penalty {
					vertex, value = v, fv
					break Search
				}
			}
		}
		if vertex == nil {
			vertex = append([]float64(nil), y...)
			vertex[j] += a.cfg.SimplexSize
		}
		vertices = append(vertices, vertex)
		values = append(values, value)
	}
	vertices = append(vertices, append([]float64(nil), y...))
	values = append(values, g)
	return vertices, values, evaluations
}

// Sweep calls SetState for each condition in order, each search starting
// from the previous result.
func (a *Assemblage) Sweep(conditions []Condition) ([]*State, error) {
	states := make([]*State, 0, len(conditions))
	for _, c := range conditions {
		st, err := a.SetState(c.Pressure, c.Temperature)
		if err != nil {
			return states, fmt.Errorf("P = %g, T = %g: %w", c.Pressure, c.Temperature, err)
		}
		states = append(states, st)
	}
	return states, nil
}

// Clone returns an Assemblage sharing the immutable matrices and phases but
// owning its own vectors.
func (a *Assemblage) Clone() *Assemblage {
	c := *a
	c.bulk = mat.VecDenseCopyOf(a.bulk)
	c.baseline = mat.VecDenseCopyOf(a.baseline)
	c.reduced = append([]float64(nil), a.reduced...)
	c.last = nil
	return &c
}

// SpeciesVector returns x0 + R·y as a vector
func (a *Assemblage) SpeciesVector(reduced []float64) (*mat.VecDense, error) {
	if len(reduced) != a.NumReactions() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(reduced), a.NumReactions())
	}
	return mat.NewVecDense(a.NumSpecies(), a.speciesVector(reduced)), nil
}

func (a *Assemblage) speciesVector(reduced []float64) []float64 {
	x := append([]float64(nil), a.baseline.RawVector().Data...)
	for j, yj := range reduced {
		if yj == 0 {
			continue
		}
		for i := range x {
			x[i] += a.right.At(i, j) * yj
		}
	}
	return x
}

func (a *Assemblage) NumSpecies() int   { return a.stoich.NumSpecies() }
func (a *Assemblage) NumReactions() int { return utils.Cols(a.right) }

// Elements returns the sorted element symbols indexing rows of S
func (a *Assemblage) Elements() []string { return a.stoich.Elements }

// Labels returns species labels in column order
func (a *Assemblage) Labels() []string { return a.stoich.Labels }

func (a *Assemblage) Phases() []phase.Phase { return a.phases }

func (a *Assemblage) Stoichiometry() *builder.Stoichiometry { return a.stoich }

// Reactions returns the sparsified reaction basis R (N x K), nil when no
// reactions exist.
func (a *Assemblage) Reactions() *mat.Dense { return a.right }

// LeftNullspace returns the unreachable composition directions (E x M)
func (a *Assemblage) LeftNullspace() *mat.Dense { return a.left }

// Bulk returns the bulk composition in element order, after any projection
func (a *Assemblage) Bulk() *mat.VecDense { return mat.VecDenseCopyOf(a.bulk) }

// BulkMap is Bulk keyed by element
func (a *Assemblage) BulkMap() map[string]float64 {
	m := make(map[string]float64, len(a.stoich.Elements))
	for i, e := range a.stoich.Elements {
		m[e] = a.bulk.AtVec(i)
	}
	return m
}

// Baseline returns x0
func (a *Assemblage) Baseline() *mat.VecDense { return mat.VecDenseCopyOf(a.baseline) }

// Reduced returns the current reduced vector y
func (a *Assemblage) Reduced() []float64 { return append([]float64(nil), a.reduced...) }

// Last returns the result of the most recent successful SetState, or nil
func (a *Assemblage) Last() *State { return a.last }
