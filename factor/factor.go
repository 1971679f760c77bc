// Package factor implements the bounding box measurement of a quadric landmark: the residual
// between the box predicted by projecting the quadric into a camera and an observed box, with its
// Jacobians with respect to the camera pose and the quadric.
package factor

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/quadricslam/conic"
	"go.viam.com/quadricslam/logging"
	"go.viam.com/quadricslam/quadric"
	"go.viam.com/quadricslam/rimage/transform"
	"go.viam.com/quadricslam/spatialmath"
	"go.viam.com/quadricslam/utils"
)

// FailureResidual is the value of every residual component when the predicted box cannot be
// computed. The Jacobians are zero in that case.
const FailureResidual = 1000.0

// Result is one evaluation of a factor.
type Result struct {
	// Residual is predicted minus measured, ordered (xmin, ymin, xmax, ymax).
	Residual [4]float64
	// H1 is the 4x6 Jacobian with respect to the pose tangent, nil unless requested.
	H1 *mat.Dense
	// H2 is the 4x9 Jacobian with respect to the quadric tangent, nil unless requested.
	H2 *mat.Dense
	// Err is the geometry failure that produced the fixed residual, nil on success.
	Err error
}

// Failed reports whether the evaluation fell back to the fixed residual.
func (r Result) Failed() bool {
	return r.Err != nil
}

// BoundingBoxFactor relates a camera pose and a quadric through a measured bounding box. It is
// immutable and safe for concurrent use.
type BoundingBoxFactor struct {
	measured      spatialmath.AlignedBox2
	intrinsics    *transform.PinholeCameraIntrinsics
	poseKey       Key
	quadricKey    Key
	mode          MeasurementMode
	noise         DiagonalNoise
	checkGeometry bool
	logger        logging.Logger
}

// NewBoundingBoxFactor validates conf and returns the factor it describes. A nil logger logs to a
// sublogger of the global logger.
func NewBoundingBoxFactor(conf *Config, logger logging.Logger) (*BoundingBoxFactor, error) {
	if conf == nil {
		return nil, errors.New("bounding box factor config is required")
	}
	if err := conf.Validate("factor"); err != nil {
		return nil, err
	}
	mode := conf.Mode
	if mode == "" {
		mode = SimpleMode
	}
	noise := UnitNoise()
	if len(conf.Sigmas) != 0 {
		var err error
		if noise, err = NewDiagonalNoise(conf.Sigmas...); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logging.Global().Sublogger("factor")
	}
	intrinsics := *conf.Intrinsics
	return &BoundingBoxFactor{
		measured:      conf.Measured,
		intrinsics:    &intrinsics,
		poseKey:       conf.PoseKey,
		quadricKey:    conf.QuadricKey,
		mode:          mode,
		noise:         noise,
		checkGeometry: conf.CheckGeometry,
		logger:        logger,
	}, nil
}

// Measured returns the observed box.
func (f *BoundingBoxFactor) Measured() spatialmath.AlignedBox2 {
	return f.measured
}

// Keys returns the pose and quadric keys.
func (f *BoundingBoxFactor) Keys() (Key, Key) {
	return f.poseKey, f.quadricKey
}

// Mode returns the measurement mode.
func (f *BoundingBoxFactor) Mode() MeasurementMode {
	return f.mode
}

// Noise returns the noise model.
func (f *BoundingBoxFactor) Noise() DiagonalNoise {
	return f.noise
}

// predictBox returns the predicted box and, when requested, its Jacobians.
func (f *BoundingBoxFactor) predictBox(
	pose spatialmath.Pose,
	q quadric.Quadric,
	wantH1, wantH2 bool,
) (spatialmath.AlignedBox2, *mat.Dense, *mat.Dense, error) {
	if err := q.Validate(); err != nil {
		return spatialmath.AlignedBox2{}, nil, nil, err
	}
	if f.checkGeometry {
		if err := q.CheckVisible(pose); err != nil {
			return spatialmath.AlignedBox2{}, nil, nil, err
		}
	}
	proj, err := transform.ProjectQuadric(q, pose, f.intrinsics, wantH1, wantH2)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, nil, err
	}

	wantJacobian := wantH1 || wantH2
	var box spatialmath.AlignedBox2
	var dbdc *mat.Dense
	switch f.mode {
	case StrictMode:
		box, dbdc, err = proj.Conic.SmartBounds(f.intrinsics, wantJacobian)
	default:
		box, dbdc, err = proj.Conic.Bounds(wantJacobian)
	}
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, nil, err
	}

	var h1, h2 *mat.Dense
	if wantH1 {
		h1 = mat.NewDense(4, spatialmath.PoseDim, nil)
		h1.Mul(dbdc, proj.DCDx)
		if !utils.MatrixIsFinite(h1) {
			return spatialmath.AlignedBox2{}, nil, nil, conic.NewDegenerateConicError("pose jacobian is not finite")
		}
	}
	if wantH2 {
		h2 = mat.NewDense(4, quadric.Dim, nil)
		h2.Mul(dbdc, proj.DCDq)
		if !utils.MatrixIsFinite(h2) {
			return spatialmath.AlignedBox2{}, nil, nil, conic.NewDegenerateConicError("quadric jacobian is not finite")
		}
	}
	return box, h1, h2, nil
}

// Evaluate returns the residual of the predicted box for pose and q against the measured box, and
// the requested Jacobians. Geometry failures never escape: they produce FailureResidual in every
// component and zero Jacobians.
func (f *BoundingBoxFactor) Evaluate(pose spatialmath.Pose, q quadric.Quadric, wantH1, wantH2 bool) Result {
	box, h1, h2, err := f.predictBox(pose, q, wantH1, wantH2)
	if err != nil {
		return f.failure(err, wantH1, wantH2)
	}
	predicted, measured := box.Vector(), f.measured.Vector()
	var out Result
	for i := range out.Residual {
		out.Residual[i] = predicted[i] - measured[i]
	}
	out.H1, out.H2 = h1, h2
	return out
}

func (f *BoundingBoxFactor) failure(err error, wantH1, wantH2 bool) Result {
	switch {
	case errors.Is(err, quadric.ErrInvalidQuadric),
		errors.Is(err, quadric.ErrCameraInsideQuadric),
		errors.Is(err, quadric.ErrQuadricBehindCamera),
		errors.Is(err, conic.ErrDegenerateConic),
		errors.Is(err, conic.ErrExtremaExtraction):
		f.logger.Debugw("bounding box prediction failed, using fixed residual",
			"pose_key", f.poseKey, "quadric_key", f.quadricKey, "mode", f.mode, "error", err)
	default:
		f.logger.Warnw("unexpected error predicting bounding box, using fixed residual",
			"pose_key", f.poseKey, "quadric_key", f.quadricKey, "error", err)
	}
	out := Result{
		Residual: [4]float64{FailureResidual, FailureResidual, FailureResidual, FailureResidual},
		Err:      err,
	}
	if wantH1 {
		out.H1 = mat.NewDense(4, spatialmath.PoseDim, nil)
	}
	if wantH2 {
		out.H2 = mat.NewDense(4, quadric.Dim, nil)
	}
	return out
}

// EvaluateH1 returns only the Jacobian with respect to the pose.
func (f *BoundingBoxFactor) EvaluateH1(pose spatialmath.Pose, q quadric.Quadric) *mat.Dense {
	return f.Evaluate(pose, q, true, false).H1
}

// EvaluateH2 returns only the Jacobian with respect to the quadric.
func (f *BoundingBoxFactor) EvaluateH2(pose spatialmath.Pose, q quadric.Quadric) *mat.Dense {
	return f.Evaluate(pose, q, false, true).H2
}

// EvaluateValues looks up the factor's variables in values and evaluates it. Only a missing
// variable is an error.
func (f *BoundingBoxFactor) EvaluateValues(values Values, wantH1, wantH2 bool) (Result, error) {
	pose, err := values.Pose(f.poseKey)
	if err != nil {
		return Result{}, err
	}
	q, err := values.Quadric(f.quadricKey)
	if err != nil {
		return Result{}, err
	}
	return f.Evaluate(pose, q, wantH1, wantH2), nil
}

// Error returns half the squared norm of the whitened residual at values.
func (f *BoundingBoxFactor) Error(values Values) (float64, error) {
	res, err := f.EvaluateValues(values, false, false)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, r := range f.noise.Whiten(res.Residual) {
		sum += r * r
	}
	return 0.5 * sum, nil
}

// Equals compares two factors, with measurements and intrinsics compared within tol.
func (f *BoundingBoxFactor) Equals(other *BoundingBoxFactor, tol float64) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.poseKey != other.poseKey || f.quadricKey != other.quadricKey ||
		f.mode != other.mode || f.checkGeometry != other.checkGeometry {
		return false
	}
	for i, s := range f.noise.sigmas {
		if !utils.Float64AlmostEqual(s, other.noise.sigmas[i], tol) {
			return false
		}
	}
	return f.measured.AlmostEqual(other.measured, tol) && f.intrinsics.Equals(other.intrinsics, tol)
}

// String returns a human readable string that represents the factor.
func (f *BoundingBoxFactor) String() string {
	return fmt.Sprintf("BoundingBoxFactor(pose=%d, quadric=%d, mode=%s, measured=%v)",
		f.poseKey, f.quadricKey, f.mode, f.measured)
}
