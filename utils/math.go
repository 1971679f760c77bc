// Package utils contains small numeric helpers shared by the geometry packages.
package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Square returns n*n. Math.pow( x, 2 ) is slow, this is faster.
func Square(n float64) float64 {
	return n * n
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MatrixIsFinite reports whether every element of m is finite.
func MatrixIsFinite(m mat.Matrix) bool {
	return IsFinite(Vectorize(m)...)
}

// MaxAbs returns the largest absolute element of m.
func MaxAbs(m mat.Matrix) float64 {
	return floats.Norm(Vectorize(m), math.Inf(1))
}

// Vectorize flattens a matrix into a row-major slice, entry (i, j) landing at i*cols + j.
func Vectorize(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// SetColumnFromMatrix writes the row-major flattening of src into column col of dst.
func SetColumnFromMatrix(dst *mat.Dense, col int, src mat.Matrix) {
	dst.SetCol(col, Vectorize(src))
}

// Symmetrize returns (m + mᵀ)/2, removing round-off asymmetry.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return out
}
