package nullspace

import (
	"math"

	"github.com/notargets/gibbsmin/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Sparsify rewrites the columns of R (N x K) as a basis of the same subspace
// in reduced row echelon form: each vector has a pivot species that appears in
// no other vector, which tends to produce reactions with few participants.
// Entries below tol are chopped and each vector is scaled so its largest
// magnitude coefficient is one. Nil in, nil out.
//
// Finding the sparsest basis is NP-hard; this is the greedy row reduction.
func Sparsify(R *mat.Dense, tol float64) *mat.Dense {
	if R == nil {
		return nil
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	n, k := R.Dims()

	// Work on Rᵗ, one reaction per row
	rows := make([][]float64, k)
	for i := range rows {
		rows[i] = mat.Col(nil, i, R)
	}

	lead := 0
	for col := 0; col < n && lead < k; col++ {
		// Partial pivoting on the column
		p, best := lead, math.Abs(rows[lead][col])
		for r := lead + 1; r < k; r++ {
			if a := math.Abs(rows[r][col]); a > best {
				p, best = r, a
			}
		}
		if best <= tol {
			continue
		}
		rows[lead], rows[p] = rows[p], rows[lead]
		floats.Scale(1/rows[lead][col], rows[lead])

		for r := 0; r < k; r++ {
			if r == lead || rows[r][col] == 0 {
				continue
			}
			floats.AddScaled(rows[r], -rows[r][col], rows[lead])
		}
		lead++
	}

	basis := make([][]float64, 0, lead)
	for _, v := range rows[:lead] {
		utils.Chop(v, tol)
		if m := utils.MaxAbs(v); m > 0 {
			floats.Scale(1/m, v)
		}
		basis = append(basis, v)
	}
	return utils.ColumnsOf(n, basis)
}

// Nonzeros counts entries of R with magnitude above tol
func Nonzeros(R *mat.Dense, tol float64) int {
	if R == nil {
		return 0
	}
	count := 0
	n, k := R.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			if math.Abs(R.At(i, j)) > tol {
				count++
			}
		}
	}
	return count
}
