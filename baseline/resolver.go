// Package baseline finds a non-negative species vector x0 with S·x0 = b, the
// origin of the reaction-extent coordinates used by the equilibrium solver.
package baseline

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/notargets/gibbsmin/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Defaults for Config fields left at zero
const (
	DefaultTolerance         = 1e-10
	DefaultResidualTolerance = 1e-8
	DefaultMaxCorrections    = 10000
)

var (
	// ErrInfeasibleBaseline is returned when negative species amounts cannot
	// be removed by moving along reactions.
	ErrInfeasibleBaseline = errors.New("baseline: cannot resolve a non-negative baseline")

	// ErrResidual is returned when S·x0 misses b after resolution
	ErrResidual = errors.New("baseline: baseline does not reproduce bulk composition")

	// ErrDegenerateComposition is returned when projecting b out of the left
	// null space leaves nothing to renormalise.
	ErrDegenerateComposition = errors.New("baseline: projected composition has no positive total")

	ErrDimension = errors.New("baseline: dimension mismatch")
)

// Config holds the numerical controls of a Resolver
type Config struct {
	// Tolerance is both the threshold on left null space power and the
	// width of the [0, Tolerance) band clamped to zero. Default 1e-10.
	Tolerance float64

	// ResidualTolerance bounds |S·x0 - b|∞ at the end. Default 1e-8.
	ResidualTolerance float64

	// MaxCorrections bounds the number of reaction moves. Default 10000.
	MaxCorrections int

	// Logger receives the projection warning. Nil means log.Default().
	Logger *log.Logger

	// Labels optionally names elements in the projection warning
	Labels []string
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.ResidualTolerance <= 0 {
		c.ResidualTolerance = DefaultResidualTolerance
	}
	if c.MaxCorrections <= 0 {
		c.MaxCorrections = DefaultMaxCorrections
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Resolver holds the fixed matrices of one phase set
type Resolver struct {
	S, Pinv *mat.Dense // E x N, N x E
	L, R    *mat.Dense // E x M, N x K; nil when empty
	cfg     Config
}

// Result of one resolution
type Result struct {
	Baseline *mat.VecDense // x0, length N
	Bulk     *mat.VecDense // b after any projection, length E
	Reduced  []float64     // zero vector of length K

	Projected   bool
	NullPower   []float64 // Lᵗ·b before projection
	Corrections int       // reaction moves taken
}

// NewResolver panics on inconsistent dimensions, these come from the same S.
func NewResolver(S, pinv, L, R *mat.Dense, cfg Config) *Resolver {
	e, n := S.Dims()
	if pr, pc := pinv.Dims(); pr != n || pc != e {
		panic(fmt.Sprintf("pseudoinverse is %d x %d, want %d x %d", pr, pc, n, e))
	}
	if L != nil && utils.Rows(L) != e {
		panic(fmt.Sprintf("left null space has %d rows, want %d", utils.Rows(L), e))
	}
	if R != nil && utils.Rows(R) != n {
		panic(fmt.Sprintf("right null space has %d rows, want %d", utils.Rows(R), n))
	}
	return &Resolver{S: S, Pinv: pinv, L: L, R: R, cfg: cfg.withDefaults()}
}

// Config returns the resolver's configuration with defaults applied
func (r *Resolver) Config() Config { return r.cfg }

// Resolve computes x0 for bulk composition b. b is not modified; a projected
// composition is returned in Result.Bulk.
func (r *Resolver) Resolve(b mat.Vector) (*Result, error) {
	e, n := r.S.Dims()
	if b.Len() != e {
		return nil, fmt.Errorf("%w: bulk vector has %d entries, want %d", ErrDimension, b.Len(), e)
	}
	res := &Result{
		Bulk:    mat.VecDenseCopyOf(b),
		Reduced: make([]float64, utils.Cols(r.R)),
	}

	if err := r.project(res); err != nil {
		return nil, err
	}

	// Minimum norm solution of S·x = b
	x := mat.NewVecDense(n, nil)
	x.MulVec(r.Pinv, res.Bulk)

	corrections, err := r.repair(x.RawVector().Data)
	res.Corrections = corrections
	if err != nil {
		return nil, err
	}

	if resid := utils.ResidualInf(r.S, x, res.Bulk); resid > r.cfg.ResidualTolerance {
		return nil, fmt.Errorf("%w: residual %g exceeds %g", ErrResidual, resid, r.cfg.ResidualTolerance)
	}
	res.Baseline = x
	return res, nil
}

// project removes the part of b in the left null space and renormalises b to
// unit sum. This changes the requested composition, so it is always logged.
func (r *Resolver) project(res *Result) error {
	if r.L == nil {
		return nil
	}
	power := mat.NewVecDense(utils.Cols(r.L), nil)
	power.MulVec(r.L.T(), res.Bulk)
	res.NullPower = power.RawVector().Data

	// SVD fixes the direction of each column only up to sign
	if utils.MaxAbs(res.NullPower) <= r.cfg.Tolerance {
		return nil
	}

	bd := res.Bulk.RawVector().Data
	for j, p := range res.NullPower {
		floats.AddScaled(bd, -p, mat.Col(nil, j, r.L))
	}
	if !utils.NormalizeSum(bd) {
		return fmt.Errorf("%w: %v", ErrDegenerateComposition, bd)
	}
	res.Projected = true

	r.cfg.Logger.Printf("composition cannot be represented by the given phases, "+
		"projecting onto the closest representable composition: %s", r.describe(bd))
	return nil
}

func (r *Resolver) describe(b []float64) string {
	if len(r.cfg.Labels) != len(b) {
		return fmt.Sprint(b)
	}
	s := ""
	for i, v := range b {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s:%.6g", r.cfg.Labels[i], v)
	}
	return s
}

// repair walks x in index order. A negative entry is zeroed by subtracting a
// multiple of the reaction with the largest coefficient for that species, then
// the walk restarts since earlier entries may have changed. Entries in
// [0, Tolerance) are clamped to zero.
func (r *Resolver) repair(x []float64) (corrections int, err error) {
	eps := r.cfg.Tolerance
	k := utils.Cols(r.R)

	for i := 0; i < len(x); {
		switch {
		case x[i] < 0:
			if corrections >= r.cfg.MaxCorrections {
				return corrections, fmt.Errorf("%w: species %d still negative (%g) after %d corrections",
					ErrInfeasibleBaseline, i, x[i], corrections)
			}
			j := r.pickReaction(i)
			if j < 0 {
				return corrections, fmt.Errorf("%w: species %d is negative (%g) and takes part in no reaction (%d available)",
					ErrInfeasibleBaseline, i, x[i], k)
			}
			reaction := mat.Col(nil, j, r.R)
			floats.AddScaled(x, -x[i]/reaction[i], reaction)
			x[i] = 0
			corrections++
			i = 0
		case x[i] < eps:
			x[i] = 0
			i++
		default:
			i++
		}
	}
	return corrections, nil
}

// pickReaction returns the reaction column with the largest coefficient for
// species i, first index on ties. When that coefficient is numerically zero
// the column with the largest magnitude is used; -1 if species i is in no
// reaction.
func (r *Resolver) pickReaction(i int) int {
	k := utils.Cols(r.R)
	if k == 0 {
		return -1
	}
	row := mat.Row(nil, i, r.R)
	best := floats.MaxIdx(row)
	if math.Abs(row[best]) > r.cfg.Tolerance {
		return best
	}
	best, bestAbs := -1, r.cfg.Tolerance
	for j, v := range row {
		if a := math.Abs(v); a > bestAbs {
			best, bestAbs = j, a
		}
	}
	return best
}
