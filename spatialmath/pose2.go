package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Pose2 is a rigid transformation in the image plane: a rotation by Theta radians followed by a
// translation to (X, Y).
type Pose2 struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose2 returns a Pose2 at point rotated by theta radians.
func NewPose2(point r2.Point, theta float64) Pose2 {
	return Pose2{X: point.X, Y: point.Y, Theta: theta}
}

// Point returns the translation of the pose.
func (p Pose2) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// Matrix returns the 3x3 homogeneous transform [R t; 0 1].
func (p Pose2) Matrix() *mat.Dense {
	rot := mgl64.Rotate2D(p.Theta)
	return mat.NewDense(3, 3, []float64{
		rot.At(0, 0), rot.At(0, 1), p.X,
		rot.At(1, 0), rot.At(1, 1), p.Y,
		0, 0, 1,
	})
}

// TransformPoint maps a point from the pose frame into the parent frame.
func (p Pose2) TransformPoint(pt r2.Point) r2.Point {
	v := mgl64.Rotate2D(p.Theta).Mul2x1(mgl64.Vec2{pt.X, pt.Y})
	return r2.Point{X: v.X() + p.X, Y: v.Y() + p.Y}
}
