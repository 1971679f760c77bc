package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/quadricslam/utils"
)

// AlignedBox2 is an axis-aligned rectangle in the image plane, in pixels. Xmin <= Xmax and
// Ymin <= Ymax always hold for boxes built through the constructors.
type AlignedBox2 struct {
	Xmin float64 `json:"xmin"`
	Ymin float64 `json:"ymin"`
	Xmax float64 `json:"xmax"`
	Ymax float64 `json:"ymax"`
}

// NewAlignedBox2 returns a box with the given corners, or an error if the corners are inverted
// or not finite.
func NewAlignedBox2(xmin, ymin, xmax, ymax float64) (AlignedBox2, error) {
	if !utils.IsFinite(xmin, ymin, xmax, ymax) {
		return AlignedBox2{}, errors.Errorf("box corners must be finite, got (%v, %v, %v, %v)", xmin, ymin, xmax, ymax)
	}
	if xmin > xmax || ymin > ymax {
		return AlignedBox2{}, errors.Errorf("box corners are inverted, got (%v, %v, %v, %v)", xmin, ymin, xmax, ymax)
	}
	return AlignedBox2{Xmin: xmin, Ymin: ymin, Xmax: xmax, Ymax: ymax}, nil
}

// NewAlignedBox2FromVector builds a box from (xmin, ymin, xmax, ymax).
func NewAlignedBox2FromVector(v [4]float64) (AlignedBox2, error) {
	return NewAlignedBox2(v[0], v[1], v[2], v[3])
}

// NewAlignedBox2FromPoints returns the smallest box containing every point. It returns false if no
// points are given.
func NewAlignedBox2FromPoints(points ...r2.Point) (AlignedBox2, bool) {
	if len(points) == 0 {
		return AlignedBox2{}, false
	}
	return fromRect(r2.RectFromPoints(points...)), true
}

func fromRect(r r2.Rect) AlignedBox2 {
	return AlignedBox2{Xmin: r.X.Lo, Ymin: r.Y.Lo, Xmax: r.X.Hi, Ymax: r.Y.Hi}
}

func (b AlignedBox2) rect() r2.Rect {
	return r2.RectFromPoints(b.Min(), b.Max())
}

// Vector returns the box as (xmin, ymin, xmax, ymax).
func (b AlignedBox2) Vector() [4]float64 {
	return [4]float64{b.Xmin, b.Ymin, b.Xmax, b.Ymax}
}

// Min returns the top-left corner.
func (b AlignedBox2) Min() r2.Point {
	return r2.Point{X: b.Xmin, Y: b.Ymin}
}

// Max returns the bottom-right corner.
func (b AlignedBox2) Max() r2.Point {
	return r2.Point{X: b.Xmax, Y: b.Ymax}
}

// Center returns the center of the box.
func (b AlignedBox2) Center() r2.Point {
	return b.rect().Center()
}

// Width returns xmax - xmin.
func (b AlignedBox2) Width() float64 {
	return b.Xmax - b.Xmin
}

// Height returns ymax - ymin.
func (b AlignedBox2) Height() float64 {
	return b.Ymax - b.Ymin
}

// Area returns the area of the box.
func (b AlignedBox2) Area() float64 {
	return b.Width() * b.Height()
}

// ContainsPoint reports whether pt lies inside or on the boundary of the box.
func (b AlignedBox2) ContainsPoint(pt r2.Point) bool {
	return b.rect().ContainsPoint(pt)
}

// Contains reports whether other lies entirely inside b.
func (b AlignedBox2) Contains(other AlignedBox2) bool {
	return b.rect().Contains(other.rect())
}

// Intersects reports whether the boxes overlap, including touching edges.
func (b AlignedBox2) Intersects(other AlignedBox2) bool {
	return b.rect().Intersects(other.rect())
}

// Intersection returns the overlap of the two boxes and false if they do not overlap.
func (b AlignedBox2) Intersection(other AlignedBox2) (AlignedBox2, bool) {
	r := b.rect().Intersection(other.rect())
	if r.IsEmpty() {
		return AlignedBox2{}, false
	}
	return fromRect(r), true
}

// IoU returns the intersection over union of the two boxes, in [0, 1].
func (b AlignedBox2) IoU(other AlignedBox2) float64 {
	inter, ok := b.Intersection(other)
	if !ok {
		return 0
	}
	union := b.Area() + other.Area() - inter.Area()
	if union <= 0 {
		return 0
	}
	return inter.Area() / union
}

// AlmostEqual compares every corner within tol.
func (b AlignedBox2) AlmostEqual(other AlignedBox2, tol float64) bool {
	return utils.Float64AlmostEqual(b.Xmin, other.Xmin, tol) &&
		utils.Float64AlmostEqual(b.Ymin, other.Ymin, tol) &&
		utils.Float64AlmostEqual(b.Xmax, other.Xmax, tol) &&
		utils.Float64AlmostEqual(b.Ymax, other.Ymax, tol)
}

// String returns a human readable string that represents the box.
func (b AlignedBox2) String() string {
	return fmt.Sprintf("AlignedBox2(%.3f, %.3f, %.3f, %.3f)", b.Xmin, b.Ymin, b.Xmax, b.Ymax)
}
