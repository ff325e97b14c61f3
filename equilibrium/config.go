package equilibrium

import (
	"log"

	"github.com/notargets/gibbsmin/baseline"
	"github.com/notargets/gibbsmin/nullspace"
)

// Defaults for Config fields left at zero
const (
	DefaultFeasibilityTolerance  = 1e-6
	DefaultPenalty               = 1e30
	DefaultMaxIterations         = 5000
	DefaultMaxEvaluations        = 20000
	DefaultConvergenceTolerance  = 1e-6 // J/mol
	DefaultConvergenceIterations = 50
	DefaultSimplexSize           = 0.05

	// A FeasibilityTolerance above this share of the bulk total is logged
	feasibilityWarnRatio = 1e-3
)

// Config holds the numerical controls of an Assemblage. All tolerances are
// absolute and so depend on the units of the stoichiometric matrix and of
// the Gibbs energies.
type Config struct {
	// SingularTolerance separates zero from non-zero singular values of S.
	// Default nullspace.DefaultTolerance (1e-10).
	SingularTolerance float64

	// Tolerance is the baseline clamp width, the left null space power
	// threshold and the smallest solid solution amount treated as present.
	// Default baseline.DefaultTolerance (1e-10).
	Tolerance float64

	// ResidualTolerance bounds |S·x0 - b|∞. Default 1e-8.
	ResidualTolerance float64

	// MaxCorrections bounds baseline repair moves. Default 10000.
	MaxCorrections int

	// FeasibilityTolerance is how far below zero a species amount may go
	// before the objective returns Penalty. Zero means
	// DefaultFeasibilityTolerance times the bulk total, so the band keeps
	// its size relative to the composition.
	FeasibilityTolerance float64

	// Penalty is the objective value of infeasible points. Default 1e30.
	Penalty float64

	// MaxIterations and MaxEvaluations cap the simplex search.
	MaxIterations  int
	MaxEvaluations int

	// The search stops once the best Gibbs energy has improved by less than
	// ConvergenceTolerance for ConvergenceIterations iterations.
	ConvergenceTolerance  float64
	ConvergenceIterations int

	// SimplexSize is the largest simplex edge tried in reduced coordinates.
	// Default 0.05.
	SimplexSize float64

	// Logger receives warnings and the assemblage after each SetState. Nil
	// means log.Default(). Quiet drops the per-call assemblage; State.Amounts
	// carries the same report.
	Logger *log.Logger
	Quiet  bool
}

func (c Config) withDefaults() Config {
	if c.SingularTolerance <= 0 {
		c.SingularTolerance = nullspace.DefaultTolerance
	}
	if c.Tolerance <= 0 {
		c.Tolerance = baseline.DefaultTolerance
	}
	if c.ResidualTolerance <= 0 {
		c.ResidualTolerance = baseline.DefaultResidualTolerance
	}
	if c.MaxCorrections <= 0 {
		c.MaxCorrections = baseline.DefaultMaxCorrections
	}
	if c.Penalty == 0 {
		c.Penalty = DefaultPenalty
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxEvaluations <= 0 {
		c.MaxEvaluations = DefaultMaxEvaluations
	}
	if c.ConvergenceTolerance <= 0 {
		c.ConvergenceTolerance = DefaultConvergenceTolerance
	}
	if c.ConvergenceIterations <= 0 {
		c.ConvergenceIterations = DefaultConvergenceIterations
	}
	if c.SimplexSize <= 0 {
		c.SimplexSize = DefaultSimplexSize
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// feasibility sets the gate width for a bulk composition summing to total
func (c Config) feasibility(total float64) Config {
	if c.FeasibilityTolerance <= 0 {
		c.FeasibilityTolerance = DefaultFeasibilityTolerance * total
		return c
	}
	if c.FeasibilityTolerance > feasibilityWarnRatio*total {
		c.Logger.Printf("feasibility tolerance %g is large against a bulk total of %g, "+
			"species amounts may go visibly negative", c.FeasibilityTolerance, total)
	}
	return c
}

func (c Config) baselineConfig(elements []string) baseline.Config {
	return baseline.Config{
		Tolerance:         c.Tolerance,
		ResidualTolerance: c.ResidualTolerance,
		MaxCorrections:    c.MaxCorrections,
		Logger:            c.Logger,
		Labels:            elements,
	}
}
