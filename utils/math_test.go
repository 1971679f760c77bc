package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestSquare(t *testing.T) {
	test.That(t, Square(-3), test.ShouldEqual, 9)
}

func TestFinite(t *testing.T) {
	test.That(t, IsFinite(1, 2, -3), test.ShouldBeTrue)
	test.That(t, IsFinite(1, math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)

	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	test.That(t, MatrixIsFinite(m), test.ShouldBeTrue)
	m.Set(1, 0, math.Inf(1))
	test.That(t, MatrixIsFinite(m), test.ShouldBeFalse)
}

func TestVectorize(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, -6})
	test.That(t, Vectorize(m), test.ShouldResemble, []float64{1, 2, 3, 4, 5, -6})
	test.That(t, MaxAbs(m), test.ShouldEqual, 6)

	dst := mat.NewDense(6, 2, nil)
	SetColumnFromMatrix(dst, 1, m)
	test.That(t, dst.At(4, 1), test.ShouldEqual, 5)
	test.That(t, dst.At(4, 0), test.ShouldEqual, 0)

	s := Symmetrize(mat.NewDense(2, 2, []float64{1, 2, 4, 1}))
	test.That(t, s.At(0, 1), test.ShouldEqual, 3)
	test.That(t, s.At(1, 0), test.ShouldEqual, 3)
	test.That(t, Float64AlmostEqual(1, 1+1e-9, 1e-8), test.ShouldBeTrue)
}
