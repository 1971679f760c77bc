package factor

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/quadricslam/logging"
	"go.viam.com/quadricslam/spatialmath"
)

func batchScene(t *testing.T, n int) ([]*BoundingBoxFactor, *MapValues) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	q, _ := testScene(t)
	values := NewMapValues()
	values.InsertQuadric(100, q)

	factors := make([]*BoundingBoxFactor, 0, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		eye := r3.Vector{X: 10 * math.Cos(angle), Y: 10 * math.Sin(angle), Z: float64(i%3) - 1}
		pose, err := spatialmath.LookAt(eye, r3.Vector{}, r3.Vector{Z: 1})
		test.That(t, err, test.ShouldBeNil)
		values.InsertPose(Key(i), pose)

		mode := SimpleMode
		if i%2 == 1 {
			mode = StrictMode
		}
		f, err := NewBoundingBoxFactor(&Config{
			Measured:   expectedBox(),
			Intrinsics: testIntrinsics(),
			PoseKey:    Key(i),
			QuadricKey: 100,
			Mode:       mode,
		}, logger)
		test.That(t, err, test.ShouldBeNil)
		factors = append(factors, f)
	}
	return factors, values
}

func TestEvaluateAll(t *testing.T) {
	factors, values := batchScene(t, 40)

	results, err := EvaluateAll(context.Background(), factors, values, true, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(results), test.ShouldEqual, len(factors))

	var got, want [][4]float64
	for i, f := range factors {
		expected, err := f.EvaluateValues(values, true, true)
		test.That(t, err, test.ShouldBeNil)
		want = append(want, expected.Residual)
		got = append(got, results[i].Residual)
		test.That(t, results[i].H1, test.ShouldNotBeNil)
		test.That(t, results[i].H2, test.ShouldNotBeNil)
	}
	test.That(t, cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)), test.ShouldBeEmpty)

	unbounded, err := EvaluateAll(context.Background(), factors, values, false, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, unbounded[0].H1, test.ShouldBeNil)

	t.Run("missing variable", func(t *testing.T) {
		orphan, err := NewBoundingBoxFactor(&Config{
			Measured:   expectedBox(),
			Intrinsics: testIntrinsics(),
			PoseKey:    999,
			QuadricKey: 100,
		}, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		_, err = EvaluateAll(context.Background(), append(factors, orphan), values, false, 2)
		test.That(t, errors.Is(err, ErrKeyNotFound), test.ShouldBeTrue)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := EvaluateAll(ctx, factors, values, false, 2)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}

func TestSummarize(t *testing.T) {
	summary, err := Summarize(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary, test.ShouldResemble, Summary{})

	summary, err = Summarize([]Result{
		{Residual: [4]float64{3, 4, 0, 0}},
		{Residual: [4]float64{0, 0, 0, 0}},
		{Residual: [4]float64{0, 0, 6, 8}},
		{Residual: [4]float64{1000, 1000, 1000, 1000}, Err: errors.New("failed")},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Count, test.ShouldEqual, 4)
	test.That(t, summary.Failures, test.ShouldEqual, 1)
	test.That(t, summary.MeanNorm, test.ShouldAlmostEqual, 5.)
	test.That(t, summary.MedianNorm, test.ShouldAlmostEqual, 5.)
	test.That(t, summary.MaxNorm, test.ShouldAlmostEqual, 10.)
	test.That(t, summary.TotalSquare, test.ShouldAlmostEqual, 125.)
}
