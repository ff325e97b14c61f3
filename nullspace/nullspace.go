// Package nullspace computes the subspaces of a stoichiometric matrix S that
// the equilibrium solver works in: the right null space (element conserving
// reactions among species), the left null space (bulk compositions no species
// combination can reach) and the Moore-Penrose pseudoinverse.
package nullspace

import (
	"errors"
	"fmt"

	"github.com/notargets/gibbsmin/utils"
	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance is the singular value below which S is treated as rank
// deficient. It is absolute, so it depends on the scale of S.
const DefaultTolerance = 1e-10

var ErrFactorization = errors.New("nullspace: singular value decomposition failed")

// Decomposition is the full SVD of S = U·Σ·Vᵗ, with singular values at or
// below Tolerance treated as zero.
type Decomposition struct {
	U, V      *mat.Dense // E x E, N x N
	Tolerance float64

	values     []float64 // min(E, N) singular values, descending
	rows, cols int
	rank       int
}

// Decompose factorises S. A tolerance <= 0 selects DefaultTolerance.
func Decompose(S mat.Matrix, tol float64) (*Decomposition, error) {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	rows, cols := S.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(S, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: %d x %d matrix", ErrFactorization, rows, cols)
	}

	d := &Decomposition{
		U:         new(mat.Dense),
		V:         new(mat.Dense),
		Tolerance: tol,
		values:    svd.Values(nil),
		rows:      rows,
		cols:      cols,
	}
	svd.UTo(d.U)
	svd.VTo(d.V)

	for _, s := range d.values {
		if s > tol {
			d.rank++
		}
	}
	return d, nil
}

// Values returns the singular values padded with zeros to length n.
// Values beyond min(E, N) are implicit zeros.
func (d *Decomposition) Values(n int) []float64 {
	v := make([]float64, n)
	copy(v, d.values)
	return v
}

// Rank is the number of singular values above the tolerance
func (d *Decomposition) Rank() int { return d.rank }

// Right returns an orthonormal basis of {r : S·r = 0} as an N x K matrix,
// K = N - rank. Nil when K is zero.
func (d *Decomposition) Right() *mat.Dense {
	return d.nullColumns(d.V, d.cols)
}

// Left returns an orthonormal basis of {l : lᵗ·S = 0} as an E x M matrix,
// M = E - rank. Nil when M is zero.
func (d *Decomposition) Left() *mat.Dense {
	return d.nullColumns(d.U, d.rows)
}

func (d *Decomposition) nullColumns(basis *mat.Dense, n int) *mat.Dense {
	sigma := d.Values(n)
	var cols [][]float64
	for j, s := range sigma {
		if s <= d.Tolerance {
			cols = append(cols, mat.Col(nil, j, basis))
		}
	}
	return utils.ColumnsOf(n, cols)
}

// PseudoInverse returns S⁺ = V·Σ⁺·Uᵗ (N x E), inverting only singular values
// above the tolerance.
func (d *Decomposition) PseudoInverse() *mat.Dense {
	pinv := mat.NewDense(d.cols, d.rows, nil)
	for k := 0; k < d.rank; k++ {
		inv := 1 / d.values[k]
		for i := 0; i < d.cols; i++ {
			vik := d.V.At(i, k) * inv
			if vik == 0 {
				continue
			}
			for j := 0; j < d.rows; j++ {
				pinv.Set(i, j, pinv.At(i, j)+vik*d.U.At(j, k))
			}
		}
	}
	return pinv
}

// RightNullspace returns a sparsified basis of the right null space of S
func RightNullspace(S mat.Matrix, tol float64) (*mat.Dense, error) {
	d, err := Decompose(S, tol)
	if err != nil {
		return nil, err
	}
	return Sparsify(d.Right(), d.Tolerance), nil
}

// LeftNullspace returns an orthonormal basis of the left null space of S
func LeftNullspace(S mat.Matrix, tol float64) (*mat.Dense, error) {
	d, err := Decompose(S, tol)
	if err != nil {
		return nil, err
	}
	return d.Left(), nil
}
