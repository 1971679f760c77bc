package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// See here for a thorough explanation: https://en.wikipedia.org/wiki/Axis%E2%80%93angle_representation
// An orientation can be expressed by an axis, a unit vector (rx, ry, rz), and a rotation around
// that axis, theta. These four numbers can be used as-is (R4), or they can be converted to R3,
// where theta is multiplied by each of the unit sphere components to give a rotation vector whose
// length is theta. The R3 form is the tangent space used by Pose.Retract.

// If the imaginary part of a quaternion is shorter than this we treat the rotation as the identity.
const smallAngleEps = 1e-12

// R4AA represents an R4 axis angle.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA creates an R4AA with no rotation about the z axis.
func NewR4AA() *R4AA {
	return &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
}

// ToR3 converts an R4 angle axis to R3.
func (r4 *R4AA) ToR3() r3.Vector {
	return r3.Vector{X: r4.RX * r4.Theta, Y: r4.RY * r4.Theta, Z: r4.RZ * r4.Theta}
}

// ToQuat converts an R4 axis angle to a unit quaternion.
// See: https://www.euclideanspace.com/maths/geometry/rotations/conversions/angleToQuaternion/index.htm
func (r4 *R4AA) ToQuat() quat.Number {
	if r4.RX == 0 && r4.RY == 0 && r4.RZ == 0 {
		return quat.Number{Real: 1}
	}
	sinA := math.Sin(r4.Theta / 2)
	// Ensure that point xyz is on the unit sphere
	r4.Normalize()

	return quat.Number{
		Real: math.Cos(r4.Theta / 2),
		Imag: r4.RX * sinA,
		Jmag: r4.RY * sinA,
		Kmag: r4.RZ * sinA,
	}
}

// Normalize scales the x, y, and z components of a R4 axis angle to be on the unit sphere.
func (r4 *R4AA) Normalize() {
	norm := math.Sqrt(r4.RX*r4.RX + r4.RY*r4.RY + r4.RZ*r4.RZ)
	if norm == 0.0 { // prevent division by 0
		panic("cannot normalize R4AA, divide by zero")
	}
	r4.RX /= norm
	r4.RY /= norm
	r4.RZ /= norm
}

// R3ToR4 converts an R3 angle axis to R4. The zero vector maps to no rotation about z.
func R3ToR4(aa r3.Vector) *R4AA {
	theta := aa.Norm()
	if theta < smallAngleEps {
		return NewR4AA()
	}
	return &R4AA{theta, aa.X / theta, aa.Y / theta, aa.Z / theta}
}

// QuatToR4AA converts a quat to an R4 axis angle in the same way the C++ Eigen library does.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatToR4AA(q quat.Number) R4AA {
	denom := Norm(q)

	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}

	if denom < smallAngleEps {
		return R4AA{0, 0, 0, 1}
	}
	return R4AA{angle, q.Imag / denom, q.Jmag / denom, q.Kmag / denom}
}

// ExpMap returns the unit quaternion of the rotation vector w (axis scaled by angle).
func ExpMap(w r3.Vector) quat.Number {
	theta := w.Norm()
	if theta < smallAngleEps {
		// first order; renormalised so repeated small updates stay on the unit sphere
		return Normalize(quat.Number{Real: 1, Imag: w.X / 2, Jmag: w.Y / 2, Kmag: w.Z / 2})
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{Real: math.Cos(theta / 2), Imag: w.X * s, Jmag: w.Y * s, Kmag: w.Z * s}
}

// LogMap returns the rotation vector of a unit quaternion, choosing the rotation of at most pi.
func LogMap(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = Flip(q)
	}
	vnorm := Norm(q)
	if vnorm < smallAngleEps {
		return r3.Vector{X: 2 * q.Imag / q.Real, Y: 2 * q.Jmag / q.Real, Z: 2 * q.Kmag / q.Real}
	}
	theta := 2 * math.Atan2(vnorm, q.Real)
	s := theta / vnorm
	return r3.Vector{X: q.Imag * s, Y: q.Jmag * s, Z: q.Kmag * s}
}
