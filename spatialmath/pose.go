// Package spatialmath defines spatial mathematical operations: rigid poses in 2D and 3D, their
// manifold updates, and axis-aligned image boxes.
package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// PoseDim is the dimension of the tangent space of a Pose.
const PoseDim = 6

// Pose is a rigid transformation in 3D, a rotation followed by a translation. When a Pose is used as
// a camera pose it maps camera coordinates to world coordinates, with the optical axis along +z and
// image y pointing down.
//
// The tangent space is ordered [ω, v]: a rotation vector ω applied on the right followed by a
// translation v expressed in the pose frame. Poses are values; every operation returns a new Pose.
type Pose struct {
	point       r3.Vector
	orientation quat.Number
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return Pose{orientation: quat.Number{Real: 1}}
}

// NewPose returns a pose at point with the given orientation. The quaternion is normalized.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	return Pose{point: point, orientation: Normalize(orientation)}
}

// NewPoseFromPoint returns an unrotated pose at point.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{point: point, orientation: quat.Number{Real: 1}}
}

// NewPoseFromRotationMatrix returns a pose at point whose orientation is the given 3x3 rotation matrix.
func NewPoseFromRotationMatrix(point r3.Vector, rot mat.Matrix) (Pose, error) {
	q, err := RotationMatrixToQuat(rot)
	if err != nil {
		return Pose{}, err
	}
	return Pose{point: point, orientation: q}, nil
}

// LookAt returns the camera pose at eye whose optical axis (+z) points at target, with image up
// (-y) aligned as closely as possible with up.
func LookAt(eye, target, up r3.Vector) (Pose, error) {
	zc := target.Sub(eye)
	if zc.Norm() == 0 {
		return Pose{}, errors.New("look-at target coincides with the eye point")
	}
	zc = zc.Normalize()
	xc := up.Mul(-1).Cross(zc)
	if xc.Norm() < 1e-9 {
		return Pose{}, errors.New("look-at up vector is parallel to the viewing direction")
	}
	xc = xc.Normalize()
	yc := zc.Cross(xc)

	rot := mat.NewDense(3, 3, []float64{
		xc.X, yc.X, zc.X,
		xc.Y, yc.Y, zc.Y,
		xc.Z, yc.Z, zc.Z,
	})
	return NewPoseFromRotationMatrix(eye, rot)
}

// Point returns the translation of the pose.
func (p Pose) Point() r3.Vector {
	return p.point
}

// Orientation returns the unit quaternion rotation of the pose.
func (p Pose) Orientation() quat.Number {
	if p.orientation == (quat.Number{}) {
		return quat.Number{Real: 1}
	}
	return p.orientation
}

// RotationMatrix returns the 3x3 rotation matrix of the pose.
func (p Pose) RotationMatrix() *mat.Dense {
	return QuatToRotationMatrix(p.Orientation())
}

// Matrix returns the 4x4 homogeneous transform [R t; 0 1].
func (p Pose) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	m.Slice(0, 3, 0, 3).(*mat.Dense).Copy(p.RotationMatrix())
	m.Set(0, 3, p.point.X)
	m.Set(1, 3, p.point.Y)
	m.Set(2, 3, p.point.Z)
	m.Set(3, 3, 1)
	return m
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	qInv := quat.Conj(p.Orientation())
	return Pose{point: RotateVector(qInv, p.point).Mul(-1), orientation: qInv}
}

// TransformPoint maps a point from the pose frame into the parent frame.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return RotateVector(p.Orientation(), pt).Add(p.point)
}

// TransformTo maps a point from the parent frame into the pose frame.
func (p Pose) TransformTo(pt r3.Vector) r3.Vector {
	return RotateVector(quat.Conj(p.Orientation()), pt.Sub(p.point))
}

// Compose returns the pose a*b, b expressed in the frame of a.
func Compose(a, b Pose) Pose {
	return Pose{
		point:       a.TransformPoint(b.point),
		orientation: Normalize(quat.Mul(a.Orientation(), b.Orientation())),
	}
}

// PoseBetween returns the pose of b in the frame of a, such that Compose(a, PoseBetween(a, b)) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(a.Inverse(), b)
}

// Retract applies a tangent-space update: R' = R*Exp(ω), t' = t + R*v.
func (p Pose) Retract(delta [PoseDim]float64) Pose {
	w := r3.Vector{X: delta[0], Y: delta[1], Z: delta[2]}
	v := r3.Vector{X: delta[3], Y: delta[4], Z: delta[5]}
	return Pose{
		point:       p.TransformPoint(v),
		orientation: Normalize(quat.Mul(p.Orientation(), ExpMap(w))),
	}
}

// LocalCoordinates returns the tangent vector delta such that p.Retract(delta) == other.
func (p Pose) LocalCoordinates(other Pose) [PoseDim]float64 {
	w := LogMap(quat.Mul(quat.Conj(p.Orientation()), other.Orientation()))
	v := p.TransformTo(other.point)
	return [PoseDim]float64{w.X, w.Y, w.Z, v.X, v.Y, v.Z}
}

// PoseAlmostEqual returns true if the translations differ by at most eps in every coordinate and
// the orientations describe approximately the same rotation.
func PoseAlmostEqual(a, b Pose, eps float64) bool {
	d := a.point.Sub(b.point)
	if d.X > eps || d.X < -eps || d.Y > eps || d.Y < -eps || d.Z > eps || d.Z < -eps {
		return false
	}
	return OrientationAlmostEqual(a.Orientation(), b.Orientation(), eps)
}

// String returns a human readable string that represents the pose.
func (p Pose) String() string {
	o := p.Orientation()
	return fmt.Sprintf("Pose{X:%.4f Y:%.4f Z:%.4f | W:%.4f I:%.4f J:%.4f K:%.4f}",
		p.point.X, p.point.Y, p.point.Z, o.Real, o.Imag, o.Jmag, o.Kmag)
}

// PoseGenerators returns the 4x4 matrices E_k such that the derivative of
// p.Retract(δ).Matrix() with respect to δ_k at δ = 0 is p.Matrix()*E_k.
func PoseGenerators() [PoseDim]*mat.Dense {
	var gens [PoseDim]*mat.Dense
	for k := 0; k < 3; k++ {
		var axis r3.Vector
		switch k {
		case 0:
			axis.X = 1
		case 1:
			axis.Y = 1
		default:
			axis.Z = 1
		}
		rot := mat.NewDense(4, 4, nil)
		rot.Slice(0, 3, 0, 3).(*mat.Dense).Copy(Skew(axis))
		gens[k] = rot

		trans := mat.NewDense(4, 4, nil)
		trans.Set(k, 3, 1)
		gens[k+3] = trans
	}
	return gens
}
