package objectdetection

import (
	"github.com/samber/lo"

	"go.viam.com/quadricslam/spatialmath"
)

// Postprocessor defines a function that filters/modifies on an incoming array of Detections.
type Postprocessor func([]Detection) []Detection

// NewAreaFilter returns a function that filters out detections below a certain area.
func NewAreaFilter(area float64) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.BoundingBox().Area() >= area
		})
	}
}

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.Score() >= conf
		})
	}
}

// NewLabelFilter returns a function that keeps only detections with one of the given labels.
func NewLabelFilter(labels ...string) Postprocessor {
	keep := lo.SliceToMap(labels, func(l string) (string, struct{}) { return l, struct{}{} })
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			_, ok := keep[d.Label()]
			return ok
		})
	}
}

// NewBorderFilter returns a function that filters out detections within margin pixels of the
// image border, whose boxes are likely truncated.
func NewBorderFilter(image spatialmath.AlignedBox2, margin float64) Postprocessor {
	inner := spatialmath.AlignedBox2{
		Xmin: image.Xmin + margin,
		Ymin: image.Ymin + margin,
		Xmax: image.Xmax - margin,
		Ymax: image.Ymax - margin,
	}
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return inner.Contains(d.BoundingBox())
		})
	}
}

// Chain applies the postprocessors in order.
func Chain(steps ...Postprocessor) Postprocessor {
	return func(in []Detection) []Detection {
		for _, step := range steps {
			in = step(in)
		}
		return in
	}
}
