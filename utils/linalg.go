package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Cols returns the column count of m, treating a nil matrix as having
// zero columns. Empty bases (no reactions, no unreachable directions) are
// carried around as nil because gonum cannot allocate zero-width matrices.
func Cols(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	_, c := m.Dims()
	return c
}

// Rows returns the row count of m, zero for nil.
func Rows(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

// ColumnsOf assembles a rows x len(cols) matrix from column vectors.
// Returns nil when cols is empty.
func ColumnsOf(rows int, cols [][]float64) *mat.Dense {
	if len(cols) == 0 {
		return nil
	}
	m := mat.NewDense(rows, len(cols), nil)
	for j, c := range cols {
		m.SetCol(j, c)
	}
	return m
}

// Chop zeroes every entry of v whose magnitude is below tol
func Chop(v []float64, tol float64) {
	for i := range v {
		if math.Abs(v[i]) < tol {
			v[i] = 0
		}
	}
}

// MaxAbs returns the largest magnitude entry of v
func MaxAbs(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

// NormalizeSum scales v in place to sum to one. It reports false and leaves
// v untouched when the sum is not positive.
func NormalizeSum(v []float64) bool {
	s := floats.Sum(v)
	if s <= 0 || math.IsNaN(s) {
		return false
	}
	floats.Scale(1/s, v)
	return true
}

// ResidualInf returns max_i |A·x - b|_i.
func ResidualInf(A mat.Matrix, x, b mat.Vector) float64 {
	r, _ := A.Dims()
	res := mat.NewVecDense(r, nil)
	res.MulVec(A, x)
	res.SubVec(res, b)
	return MaxAbs(res.RawVector().Data)
}

// MaxAbsEntry returns the largest magnitude entry of a matrix, zero for nil.
func MaxAbsEntry(m mat.Matrix) float64 {
	if m == nil {
		return 0
	}
	r, c := m.Dims()
	maxV := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a := math.Abs(m.At(i, j)); a > maxV {
				maxV = a
			}
		}
	}
	return maxV
}
