package objectdetection

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/quadricslam/spatialmath"
)

func testDetections() []Detection {
	return []Detection{
		NewDetection(spatialmath.AlignedBox2{Xmin: 10, Ymin: 10, Xmax: 20, Ymax: 20}, 0.9, "chair"),
		NewDetection(spatialmath.AlignedBox2{Xmin: 0, Ymin: 100, Xmax: 200, Ymax: 300}, 0.4, "table"),
		NewDetection(spatialmath.AlignedBox2{Xmin: 300, Ymin: 200, Xmax: 400, Ymax: 260}, 0.7, "cup"),
	}
}

func TestFilters(t *testing.T) {
	dets := testDetections()

	test.That(t, NewScoreFilter(0.5)(dets), test.ShouldHaveLength, 2)
	test.That(t, NewScoreFilter(0.95)(dets), test.ShouldHaveLength, 0)

	big := NewAreaFilter(1000)(dets)
	test.That(t, big, test.ShouldHaveLength, 2)
	test.That(t, big[0].Label(), test.ShouldEqual, "table")

	chairs := NewLabelFilter("chair", "sofa")(dets)
	test.That(t, chairs, test.ShouldHaveLength, 1)
	test.That(t, chairs[0].Score(), test.ShouldEqual, 0.9)

	image := spatialmath.AlignedBox2{Xmax: 640, Ymax: 480}
	inner := NewBorderFilter(image, 5)(dets)
	test.That(t, inner, test.ShouldHaveLength, 2)
	test.That(t, inner[1].Label(), test.ShouldEqual, "cup")

	chained := Chain(NewScoreFilter(0.5), NewAreaFilter(1000))(dets)
	test.That(t, chained, test.ShouldHaveLength, 1)
	test.That(t, chained[0].Label(), test.ShouldEqual, "cup")
	test.That(t, chained[0].BoundingBox(), test.ShouldResemble, spatialmath.AlignedBox2{Xmin: 300, Ymin: 200, Xmax: 400, Ymax: 260})

	test.That(t, Chain()(dets), test.ShouldHaveLength, 3)
}
