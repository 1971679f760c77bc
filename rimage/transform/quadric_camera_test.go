package transform

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/quadricslam/conic"
	"go.viam.com/quadricslam/quadric"
	"go.viam.com/quadricslam/spatialmath"
	"go.viam.com/quadricslam/utils"
)

func testIntrinsics(t *testing.T) *PinholeCameraIntrinsics {
	t.Helper()
	params, err := NewPinholeCameraIntrinsics(525, 525, 0, 320, 240)
	test.That(t, err, test.ShouldBeNil)
	return params
}

func randomView(t *testing.T, rng *rand.Rand, distance float64) (quadric.Quadric, spatialmath.Pose) {
	t.Helper()
	w := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	q, err := quadric.New(spatialmath.NewPose(r3.Vector{X: 1, Y: -1, Z: 0.5}, spatialmath.ExpMap(w)), r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, err, test.ShouldBeNil)

	var dir r3.Vector
	for {
		dir = r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}.Normalize()
		if math.Abs(dir.Z) < 0.9 {
			break
		}
	}
	pose, err := spatialmath.LookAt(q.Centroid().Add(dir.Mul(distance)), q.Centroid(), r3.Vector{Z: 1})
	test.That(t, err, test.ShouldBeNil)
	return q, pose
}

func TestProjectQuadricBox(t *testing.T) {
	params := testIntrinsics(t)
	q, err := quadric.New(spatialmath.NewZeroPose(), r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, err, test.ShouldBeNil)
	pose, err := spatialmath.LookAt(r3.Vector{X: 10}, r3.Vector{}, r3.Vector{Z: 1})
	test.That(t, err, test.ShouldBeNil)

	proj, err := ProjectQuadric(q, pose, params, false, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, proj.DCDx, test.ShouldBeNil)
	test.That(t, proj.DCDq, test.ShouldBeNil)
	test.That(t, proj.Conic.IsEllipse(), test.ShouldBeTrue)

	halfWidth := 525 * 2 / math.Sqrt(99)
	halfHeight := 525 * 3 / math.Sqrt(99)
	expected := spatialmath.AlignedBox2{Xmin: 320 - halfWidth, Ymin: 240 - halfHeight, Xmax: 320 + halfWidth, Ymax: 240 + halfHeight}

	box, _, err := proj.Conic.Bounds(false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, box.AlmostEqual(expected, 1e-6), test.ShouldBeTrue)
	test.That(t, box.Xmin, test.ShouldAlmostEqual, 214.47, 1e-2)
	test.That(t, box.Ymax, test.ShouldAlmostEqual, 398.29, 1e-2)

	smart, _, err := proj.Conic.SmartBounds(params, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, smart.AlmostEqual(expected, 1e-6), test.ShouldBeTrue)
}

func TestProjectQuadricSilhouette(t *testing.T) {
	params := testIntrinsics(t)
	rng := rand.New(rand.NewSource(11))
	const n = 400
	for trial := 0; trial < 5; trial++ {
		q, pose := randomView(t, rng, 12)
		proj, err := ProjectQuadric(q, pose, params, false, false)
		test.That(t, err, test.ShouldBeNil)
		box, _, err := proj.Conic.Bounds(false)
		test.That(t, err, test.ShouldBeNil)

		var pixels []r2.Point
		radii := q.Radii()
		for i := 0; i <= n; i++ {
			phi := math.Pi * float64(i) / n
			for j := 0; j < 2*n; j++ {
				theta := math.Pi * float64(j) / n
				local := r3.Vector{
					X: radii.X * math.Sin(phi) * math.Cos(theta),
					Y: radii.Y * math.Sin(phi) * math.Sin(theta),
					Z: radii.Z * math.Cos(phi),
				}
				px, ok := params.PointToPixel(pose.TransformTo(q.Pose().TransformPoint(local)))
				test.That(t, ok, test.ShouldBeTrue)
				pixels = append(pixels, px)
			}
		}
		sampled, ok := spatialmath.NewAlignedBox2FromPoints(pixels...)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, box.AlmostEqual(sampled, 0.05), test.ShouldBeTrue)
	}
}

func TestProjectQuadricJacobians(t *testing.T) {
	params := testIntrinsics(t)
	rng := rand.New(rand.NewSource(12))
	settings := &fd.JacobianSettings{Formula: fd.Central, Step: 1e-6}
	for trial := 0; trial < 3; trial++ {
		q, pose := randomView(t, rng, 8)
		proj, err := ProjectQuadric(q, pose, params, true, true)
		test.That(t, err, test.ShouldBeNil)
		r, c := proj.DCDx.Dims()
		test.That(t, r, test.ShouldEqual, conic.Dim)
		test.That(t, c, test.ShouldEqual, spatialmath.PoseDim)
		r, c = proj.DCDq.Dims()
		test.That(t, r, test.ShouldEqual, conic.Dim)
		test.That(t, c, test.ShouldEqual, quadric.Dim)

		numericPose := mat.NewDense(conic.Dim, spatialmath.PoseDim, nil)
		fd.Jacobian(numericPose, func(y, x []float64) {
			var delta [spatialmath.PoseDim]float64
			copy(delta[:], x)
			p, err := ProjectQuadric(q, pose.Retract(delta), params, false, false)
			test.That(t, err, test.ShouldBeNil)
			copy(y, utils.Vectorize(p.Conic.Matrix()))
		}, make([]float64, spatialmath.PoseDim), settings)
		test.That(t, mat.EqualApprox(numericPose, proj.DCDx, 1e-5*utils.MaxAbs(proj.DCDx)), test.ShouldBeTrue)

		numericQuadric := mat.NewDense(conic.Dim, quadric.Dim, nil)
		fd.Jacobian(numericQuadric, func(y, x []float64) {
			var delta [quadric.Dim]float64
			copy(delta[:], x)
			p, err := ProjectQuadric(q.Retract(delta), pose, params, false, false)
			test.That(t, err, test.ShouldBeNil)
			copy(y, utils.Vectorize(p.Conic.Matrix()))
		}, make([]float64, quadric.Dim), settings)
		test.That(t, mat.EqualApprox(numericQuadric, proj.DCDq, 1e-5*utils.MaxAbs(proj.DCDq)), test.ShouldBeTrue)
	}
}

func TestProjectQuadricInvalidIntrinsics(t *testing.T) {
	q, err := quadric.New(spatialmath.NewZeroPose(), r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	_, err = ProjectQuadric(q, spatialmath.NewZeroPose(), nil, true, true)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = ProjectQuadric(q, spatialmath.NewZeroPose(), &PinholeCameraIntrinsics{Fx: 0, Fy: 1}, false, false)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestProjectQuadricCameraInside(t *testing.T) {
	params := testIntrinsics(t)
	q, err := quadric.New(spatialmath.NewZeroPose(), r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, err, test.ShouldBeNil)
	proj, err := ProjectQuadric(q, spatialmath.NewZeroPose(), params, true, true)
	test.That(t, err, test.ShouldBeNil)
	_, _, err = proj.Conic.Bounds(true)
	test.That(t, errors.Is(err, conic.ErrDegenerateConic), test.ShouldBeTrue)
	_, _, err = proj.Conic.SmartBounds(params, true)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProjectQuadricSymmetric(t *testing.T) {
	params := testIntrinsics(t)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 10; i++ {
		q, pose := randomView(t, rng, 8)
		proj, err := ProjectQuadric(q, pose, params, false, false)
		test.That(t, err, test.ShouldBeNil)
		m := proj.Conic.Matrix()
		test.That(t, mat.Equal(m, m.T()), test.ShouldBeTrue)
	}
}
