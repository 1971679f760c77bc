// Package objectdetection turns bounding box detections into quadric measurements: it filters
// detections and associates each one with a landmark of the quadric map.
package objectdetection

import (
	"fmt"

	"go.viam.com/quadricslam/spatialmath"
)

// Detection is a labeled, scored bounding box produced by an object detector.
type Detection interface {
	BoundingBox() spatialmath.AlignedBox2
	Score() float64
	Label() string
}

// NewDetection creates a simple detection.
func NewDetection(box spatialmath.AlignedBox2, score float64, label string) Detection {
	return &detection2D{box, score, label}
}

type detection2D struct {
	boundingBox spatialmath.AlignedBox2
	score       float64
	label       string
}

// BoundingBox returns the bounding box of the detection.
func (d *detection2D) BoundingBox() spatialmath.AlignedBox2 {
	return d.boundingBox
}

// Score returns the confidence of the detection.
func (d *detection2D) Score() float64 {
	return d.score
}

// Label returns the class label of the detection.
func (d *detection2D) Label() string {
	return d.label
}

func (d *detection2D) String() string {
	return fmt.Sprintf("Label: %s, Score: %.2f, Box: %v", d.label, d.score, d.boundingBox)
}
