package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestAlignedBox2(t *testing.T) {
	b, err := NewAlignedBox2(10, 20, 30, 60)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Width(), test.ShouldEqual, 20)
	test.That(t, b.Height(), test.ShouldEqual, 40)
	test.That(t, b.Area(), test.ShouldEqual, 800)
	test.That(t, b.Center(), test.ShouldResemble, r2.Point{X: 20, Y: 40})
	test.That(t, b.Vector(), test.ShouldResemble, [4]float64{10, 20, 30, 60})
	test.That(t, b.ContainsPoint(r2.Point{X: 10, Y: 60}), test.ShouldBeTrue)
	test.That(t, b.ContainsPoint(r2.Point{X: 9, Y: 60}), test.ShouldBeFalse)
	test.That(t, b.String(), test.ShouldEqual, "AlignedBox2(10.000, 20.000, 30.000, 60.000)")

	_, err = NewAlignedBox2(30, 20, 10, 60)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewAlignedBox2FromVector([4]float64{0, math.NaN(), 1, 1})
	test.That(t, err, test.ShouldNotBeNil)

	fromPts, ok := NewAlignedBox2FromPoints(r2.Point{X: 3, Y: -1}, r2.Point{X: -2, Y: 4}, r2.Point{X: 0, Y: 0})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, fromPts, test.ShouldResemble, AlignedBox2{-2, -1, 3, 4})
	_, ok = NewAlignedBox2FromPoints()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestAlignedBox2Overlap(t *testing.T) {
	a := AlignedBox2{0, 0, 10, 10}
	b := AlignedBox2{5, 5, 15, 15}
	c := AlignedBox2{20, 20, 30, 30}
	inner := AlignedBox2{2, 2, 8, 8}

	test.That(t, a.Contains(inner), test.ShouldBeTrue)
	test.That(t, inner.Contains(a), test.ShouldBeFalse)
	test.That(t, a.Intersects(b), test.ShouldBeTrue)
	test.That(t, a.Intersects(c), test.ShouldBeFalse)

	inter, ok := a.Intersection(b)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, inter, test.ShouldResemble, AlignedBox2{5, 5, 10, 10})
	_, ok = a.Intersection(c)
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, a.IoU(b), test.ShouldAlmostEqual, 25.0/175.0)
	test.That(t, a.IoU(a), test.ShouldAlmostEqual, 1)
	test.That(t, a.IoU(c), test.ShouldEqual, 0)
	test.That(t, a.AlmostEqual(AlignedBox2{0, 0, 10, 10 + 1e-9}, 1e-6), test.ShouldBeTrue)
	test.That(t, a.AlmostEqual(b, 1e-6), test.ShouldBeFalse)
}

func TestPose2(t *testing.T) {
	p := NewPose2(r2.Point{X: 1, Y: 2}, math.Pi/2)
	got := p.TransformPoint(r2.Point{X: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 1)
	test.That(t, got.Y, test.ShouldAlmostEqual, 3)

	m := p.Matrix()
	test.That(t, m.At(0, 0), test.ShouldAlmostEqual, 0)
	test.That(t, m.At(1, 0), test.ShouldAlmostEqual, 1)
	test.That(t, m.At(0, 1), test.ShouldAlmostEqual, -1)
	test.That(t, m.At(0, 2), test.ShouldEqual, 1)
	test.That(t, m.At(1, 2), test.ShouldEqual, 2)
	test.That(t, m.At(2, 2), test.ShouldEqual, 1)
	test.That(t, p.Point(), test.ShouldResemble, r2.Point{X: 1, Y: 2})
}
