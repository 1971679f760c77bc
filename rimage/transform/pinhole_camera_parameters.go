// Package transform holds the pinhole camera model and the projection of quadric landmarks into
// the image as dual conics.
package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/quadricslam/spatialmath"
	"go.viam.com/quadricslam/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
// Width and Height are optional; when zero the image is taken to span twice the principal point.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Skew   float64 `json:"skew"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsics returns validated intrinsics with no explicit image size.
func NewPinholeCameraIntrinsics(fx, fy, skew, ppx, ppy float64) (*PinholeCameraIntrinsics, error) {
	params := &PinholeCameraIntrinsics{Fx: fx, Fy: fy, Skew: skew, Ppx: ppx, Ppy: ppy}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	var errs error
	if !utils.IsFinite(params.Fx, params.Fy, params.Skew, params.Ppx, params.Ppy) {
		errs = multierr.Append(errs, NewNoIntrinsicsError("Intrinsics must be finite"))
	}
	if params.Width < 0 || params.Height < 0 {
		errs = multierr.Append(errs, NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height)))
	}
	if params.Fx <= 0 {
		errs = multierr.Append(errs, NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx)))
	}
	if params.Fy <= 0 {
		errs = multierr.Append(errs, NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy)))
	}
	if params.Ppx < 0 {
		errs = multierr.Append(errs, NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx)))
	}
	if params.Ppy < 0 {
		errs = multierr.Append(errs, NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy)))
	}
	return errs
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx s  ppx],
//
//	[0  fy ppy],
//	[0  0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(0, 1, params.Skew)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// ImageBounds returns the image rectangle in pixels. Without an explicit size the image is assumed
// to be centered on the principal point.
func (params *PinholeCameraIntrinsics) ImageBounds() spatialmath.AlignedBox2 {
	width, height := float64(params.Width), float64(params.Height)
	if params.Width == 0 || params.Height == 0 {
		width, height = 2*params.Ppx, 2*params.Ppy
	}
	return spatialmath.AlignedBox2{Xmax: width, Ymax: height}
}

// PointToPixel projects a 3D point in the camera frame to sub-pixel image coordinates. It returns
// false if the point is not in front of the camera.
func (params *PinholeCameraIntrinsics) PointToPixel(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{}, false
	}
	x, y := pt.X/pt.Z, pt.Y/pt.Z
	return r2.Point{
		X: params.Fx*x + params.Skew*y + params.Ppx,
		Y: params.Fy*y + params.Ppy,
	}, true
}

// ProjectionMatrix returns the 3x4 matrix P = K*[I|0]*inv(pose) mapping homogeneous world points
// to homogeneous pixels for a camera at pose.
func (params *PinholeCameraIntrinsics) ProjectionMatrix(pose spatialmath.Pose) *mat.Dense {
	var p mat.Dense
	p.Mul(params.GetCameraMatrix(), pose.Inverse().Matrix().Slice(0, 3, 0, 4))
	return &p
}

// Equals compares every parameter within tol.
func (params *PinholeCameraIntrinsics) Equals(other *PinholeCameraIntrinsics, tol float64) bool {
	if params == nil || other == nil {
		return params == other
	}
	return params.Width == other.Width && params.Height == other.Height &&
		utils.Float64AlmostEqual(params.Fx, other.Fx, tol) &&
		utils.Float64AlmostEqual(params.Fy, other.Fy, tol) &&
		utils.Float64AlmostEqual(params.Skew, other.Skew, tol) &&
		utils.Float64AlmostEqual(params.Ppx, other.Ppx, tol) &&
		utils.Float64AlmostEqual(params.Ppy, other.Ppy, tol)
}
