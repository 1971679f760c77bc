// Package quadric implements a constrained dual quadric: an ellipsoid described by a rigid pose and
// three positive radii, with the manifold operations a least-squares solver needs to update it.
package quadric

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/quadricslam/spatialmath"
	"go.viam.com/quadricslam/utils"
)

// Dim is the dimension of the tangent space of a Quadric, ordered [ω(3), v(3), dr(3)].
const Dim = 9

// matrixTolerance is the relative tolerance used when checking a raw matrix against its
// reconstruction from pose and radii.
const matrixTolerance = 1e-6

var (
	// ErrInvalidQuadric is returned when radii are not positive or a matrix does not describe a
	// closed ellipsoid.
	ErrInvalidQuadric = errors.New("invalid quadric")
	// ErrCameraInsideQuadric is returned when the camera center lies inside the ellipsoid.
	ErrCameraInsideQuadric = errors.New("camera is inside quadric")
	// ErrQuadricBehindCamera is returned when the ellipsoid centroid is behind the image plane.
	ErrQuadricBehindCamera = errors.New("quadric is behind camera")
)

// NewInvalidQuadricError wraps ErrInvalidQuadric with a message.
func NewInvalidQuadricError(msg string) error {
	return errors.Wrap(ErrInvalidQuadric, msg)
}

// NewCameraInsideQuadricError wraps ErrCameraInsideQuadric with a message.
func NewCameraInsideQuadricError(msg string) error {
	return errors.Wrap(ErrCameraInsideQuadric, msg)
}

// NewQuadricBehindCameraError wraps ErrQuadricBehindCamera with a message.
func NewQuadricBehindCameraError(msg string) error {
	return errors.Wrap(ErrQuadricBehindCamera, msg)
}

// Quadric is an ellipsoid with center and orientation given by pose and semi-axis lengths given by
// radii along the pose's x, y and z axes. It is a value type; Retract returns a new Quadric.
//
// The dual matrix is Q* = Z·diag(r1², r2², r3², -1)·Zᵀ where Z is the homogeneous pose matrix.
type Quadric struct {
	pose  spatialmath.Pose
	radii r3.Vector
}

// New returns the quadric with the given pose and radii. Every radius must be positive and finite.
func New(pose spatialmath.Pose, radii r3.Vector) (Quadric, error) {
	q := Quadric{pose: pose, radii: radii}
	if err := q.Validate(); err != nil {
		return Quadric{}, err
	}
	return q, nil
}

// NewFromMatrix recovers a quadric from a 4x4 symmetric dual quadric matrix given up to scale.
// The shape block must be positive definite once the translation is removed, and the result is
// rebuilt and compared against the input.
func NewFromMatrix(m mat.Matrix) (Quadric, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return Quadric{}, NewInvalidQuadricError(fmt.Sprintf("expected a 4x4 matrix, got %dx%d", r, c))
	}
	if !utils.MatrixIsFinite(m) {
		return Quadric{}, NewInvalidQuadricError("matrix has non-finite entries")
	}
	scale := utils.MaxAbs(m)
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > matrixTolerance*scale {
				return Quadric{}, NewInvalidQuadricError("matrix is not symmetric")
			}
		}
	}
	if math.Abs(m.At(3, 3)) <= matrixTolerance*scale {
		return Quadric{}, NewInvalidQuadricError("matrix has no finite center")
	}

	var normalized mat.Dense
	normalized.Scale(-1/m.At(3, 3), m)

	center := r3.Vector{X: -normalized.At(0, 3), Y: -normalized.At(1, 3), Z: -normalized.At(2, 3)}
	c := []float64{center.X, center.Y, center.Z}
	shape := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			shape.SetSym(i, j, 0.5*(normalized.At(i, j)+normalized.At(j, i))+c[i]*c[j])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(shape, true); !ok {
		return Quadric{}, NewInvalidQuadricError("eigendecomposition of the shape matrix failed")
	}
	values := eig.Values(nil)
	for _, v := range values {
		if v <= 0 {
			return Quadric{}, NewInvalidQuadricError(fmt.Sprintf("shape matrix is not positive definite: eigenvalues %v", values))
		}
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	if mat.Det(&vectors) < 0 {
		for i := 0; i < 3; i++ {
			vectors.Set(i, 0, -vectors.At(i, 0))
		}
	}

	pose, err := spatialmath.NewPoseFromRotationMatrix(center, &vectors)
	if err != nil {
		return Quadric{}, errors.Wrap(ErrInvalidQuadric, err.Error())
	}
	q, err := New(pose, r3.Vector{X: math.Sqrt(values[0]), Y: math.Sqrt(values[1]), Z: math.Sqrt(values[2])})
	if err != nil {
		return Quadric{}, err
	}
	if !mat.EqualApprox(q.Matrix(), &normalized, matrixTolerance*utils.MaxAbs(&normalized)) {
		return Quadric{}, NewInvalidQuadricError("matrix is inconsistent with its recovered pose and radii")
	}
	return q, nil
}

// Validate returns ErrInvalidQuadric unless every radius is positive and finite.
func (q Quadric) Validate() error {
	r := q.radii
	if !utils.IsFinite(r.X, r.Y, r.Z) || r.X <= 0 || r.Y <= 0 || r.Z <= 0 {
		return NewInvalidQuadricError(fmt.Sprintf("radii must be positive, got %v", r))
	}
	return nil
}

// Pose returns the pose of the ellipsoid frame.
func (q Quadric) Pose() spatialmath.Pose {
	return q.pose
}

// Radii returns the semi-axis lengths.
func (q Quadric) Radii() r3.Vector {
	return q.radii
}

// Centroid returns the ellipsoid center in world coordinates.
func (q Quadric) Centroid() r3.Vector {
	return q.pose.Point()
}

// ShapeMatrix returns diag(r1², r2², r3², -1), the dual matrix in the ellipsoid frame.
func (q Quadric) ShapeMatrix() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		q.radii.X * q.radii.X, 0, 0, 0,
		0, q.radii.Y * q.radii.Y, 0, 0,
		0, 0, q.radii.Z * q.radii.Z, 0,
		0, 0, 0, -1,
	})
}

// Matrix returns the 4x4 dual quadric matrix Q*, normalized so that Q*[3][3] = -1.
func (q Quadric) Matrix() *mat.Dense {
	z := q.pose.Matrix()
	var out mat.Dense
	out.Product(z, q.ShapeMatrix(), z.T())
	return &out
}

// MatrixDerivatives returns dQ*/dδ_k at δ = 0 for each of the Dim tangent directions.
func (q Quadric) MatrixDerivatives() [Dim]*mat.Dense {
	var out [Dim]*mat.Dense
	z := q.pose.Matrix()
	shape := q.ShapeMatrix()
	for k, gen := range spatialmath.PoseGenerators() {
		var a, sym, d mat.Dense
		a.Mul(gen, shape)
		sym.Add(&a, a.T())
		d.Product(z, &sym, z.T())
		out[k] = &d
	}
	radii := []float64{q.radii.X, q.radii.Y, q.radii.Z}
	for i, r := range radii {
		a := mat.NewDense(4, 4, nil)
		a.Set(i, i, 2*r)
		var d mat.Dense
		d.Product(z, a, z.T())
		out[spatialmath.PoseDim+i] = &d
	}
	return out
}

// Retract applies a tangent update: the pose part through Pose.Retract and the radii additively.
// The result is not validated; radii may become non-positive.
func (q Quadric) Retract(delta [Dim]float64) Quadric {
	var poseDelta [spatialmath.PoseDim]float64
	copy(poseDelta[:], delta[:spatialmath.PoseDim])
	return Quadric{
		pose:  q.pose.Retract(poseDelta),
		radii: q.radii.Add(r3.Vector{X: delta[6], Y: delta[7], Z: delta[8]}),
	}
}

// LocalCoordinates returns delta such that q.Retract(delta) equals other.
func (q Quadric) LocalCoordinates(other Quadric) [Dim]float64 {
	var out [Dim]float64
	poseDelta := q.pose.LocalCoordinates(other.pose)
	copy(out[:], poseDelta[:])
	dr := other.radii.Sub(q.radii)
	out[6], out[7], out[8] = dr.X, dr.Y, dr.Z
	return out
}

// IsBehind returns true if the centroid lies behind the image plane of a camera at cameraPose.
func (q Quadric) IsBehind(cameraPose spatialmath.Pose) bool {
	return cameraPose.TransformTo(q.Centroid()).Z < 0
}

// Contains returns true if point lies inside or on the ellipsoid.
func (q Quadric) Contains(point r3.Vector) bool {
	p := q.pose.TransformTo(point)
	return utils.Square(p.X/q.radii.X)+utils.Square(p.Y/q.radii.Y)+utils.Square(p.Z/q.radii.Z) <= 1
}

// CheckVisible returns ErrQuadricBehindCamera or ErrCameraInsideQuadric when a camera at
// cameraPose cannot produce a meaningful silhouette of q.
func (q Quadric) CheckVisible(cameraPose spatialmath.Pose) error {
	if q.IsBehind(cameraPose) {
		return NewQuadricBehindCameraError(fmt.Sprintf("centroid %v", q.Centroid()))
	}
	if q.Contains(cameraPose.Point()) {
		return NewCameraInsideQuadricError(fmt.Sprintf("camera at %v", cameraPose.Point()))
	}
	return nil
}

// Bounds3D returns the world-frame axis-aligned box of the ellipsoid as its min and max corners.
func (q Quadric) Bounds3D() (r3.Vector, r3.Vector) {
	rot := q.pose.RotationMatrix()
	radii := []float64{q.radii.X, q.radii.Y, q.radii.Z}
	var half [3]float64
	for i := 0; i < 3; i++ {
		var sum float64
		for j := 0; j < 3; j++ {
			sum += utils.Square(rot.At(i, j) * radii[j])
		}
		half[i] = math.Sqrt(sum)
	}
	extent := r3.Vector{X: half[0], Y: half[1], Z: half[2]}
	c := q.Centroid()
	return c.Sub(extent), c.Add(extent)
}

// AlmostEqual compares the dual matrices entrywise within tol. Different pose and radii choices
// describing the same ellipsoid compare equal.
func (q Quadric) AlmostEqual(other Quadric, tol float64) bool {
	return mat.EqualApprox(q.Matrix(), other.Matrix(), tol)
}

// String returns a human readable string that represents the quadric.
func (q Quadric) String() string {
	return fmt.Sprintf("Quadric{%v radii:(%.4f, %.4f, %.4f)}", q.pose, q.radii.X, q.radii.Y, q.radii.Z)
}
