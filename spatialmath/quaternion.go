package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Norm returns the norm of the quaternion, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// Normalize scales a quaternion to unit length. The zero quaternion becomes the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// QuaternionAlmostEqual is an equality test for all the float components of a quaternion. Quaternions have double coverage, q == -q, and
// this function will *not* account for this. Use OrientationAlmostEqual unless you're certain this is what you want.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}

// OrientationAlmostEqual reports whether two unit quaternions describe approximately the same rotation.
func OrientationAlmostEqual(a, b quat.Number, tol float64) bool {
	return QuaternionAlmostEqual(a, b, tol) || QuaternionAlmostEqual(a, Flip(b), tol)
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// QuatToRotationMatrix returns the 3x3 rotation matrix of a unit quaternion.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RotationMatrixToQuat converts a 3x3 rotation matrix to a unit quaternion using Shepperd's method.
// It returns an error if m is not a proper rotation.
func RotationMatrixToQuat(m mat.Matrix) (quat.Number, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return quat.Number{}, errors.Errorf("rotation matrix must be 3x3, got %dx%d", r, c)
	}
	var rtr mat.Dense
	rtr.Mul(m.T(), m)
	if !mat.EqualApprox(&rtr, eye(3), 1e-6) || math.Abs(mat.Det(m)-1) > 1e-6 {
		return quat.Number{}, errors.New("matrix is not a proper rotation")
	}

	var w, x, y, z float64
	switch trace := m.At(0, 0) + m.At(1, 1) + m.At(2, 2); {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		w = 0.25 / s
		x = (m.At(2, 1) - m.At(1, 2)) * s
		y = (m.At(0, 2) - m.At(2, 0)) * s
		z = (m.At(1, 0) - m.At(0, 1)) * s
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := 2 * math.Sqrt(1+m.At(0, 0)-m.At(1, 1)-m.At(2, 2))
		w = (m.At(2, 1) - m.At(1, 2)) / s
		x = 0.25 * s
		y = (m.At(0, 1) + m.At(1, 0)) / s
		z = (m.At(0, 2) + m.At(2, 0)) / s
	case m.At(1, 1) > m.At(2, 2):
		s := 2 * math.Sqrt(1+m.At(1, 1)-m.At(0, 0)-m.At(2, 2))
		w = (m.At(0, 2) - m.At(2, 0)) / s
		x = (m.At(0, 1) + m.At(1, 0)) / s
		y = 0.25 * s
		z = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+m.At(2, 2)-m.At(0, 0)-m.At(1, 1))
		w = (m.At(1, 0) - m.At(0, 1)) / s
		x = (m.At(0, 2) + m.At(2, 0)) / s
		y = (m.At(1, 2) + m.At(2, 1)) / s
		z = 0.25 * s
	}
	return Normalize(quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}), nil
}

// Skew returns the 3x3 cross-product matrix [v]x, so that Skew(v)*u == v.Cross(u).
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
