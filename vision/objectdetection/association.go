package objectdetection

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/quadricslam/factor"
	"go.viam.com/quadricslam/logging"
	"go.viam.com/quadricslam/quadric"
	"go.viam.com/quadricslam/rimage/transform"
	"go.viam.com/quadricslam/spatialmath"
)

// AssociationConfig configures data association of detections to map landmarks.
type AssociationConfig struct {
	IoUThreshold     float64                `json:"iou_threshold"`
	Mode             factor.MeasurementMode `json:"mode,omitempty"`
	FirstLandmarkKey factor.Key             `json:"first_landmark_key"`
	Parallelism      int                    `json:"parallelism,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *AssociationConfig) Validate(path string) error {
	var errs error
	if conf.IoUThreshold <= 0 || conf.IoUThreshold > 1 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("iou_threshold must be in (0, 1], got %v", conf.IoUThreshold)))
	}
	switch conf.Mode {
	case "", factor.SimpleMode, factor.StrictMode:
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", conf.Mode)))
	}
	if conf.Parallelism < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("parallelism cannot be negative, got %d", conf.Parallelism)))
	}
	return errs
}

// Landmarks is the quadric map detections are associated against.
type Landmarks interface {
	QuadricKeys() []factor.Key
	Quadric(key factor.Key) (quadric.Quadric, error)
}

// Association is the landmark chosen for one detection.
type Association struct {
	Detection  Detection
	QuadricKey factor.Key
	// New is set when no landmark matched and QuadricKey is freshly allocated.
	New bool
	// IoU is the overlap with the predicted box of the matched landmark.
	IoU       float64
	Predicted spatialmath.AlignedBox2
}

// Associator matches detections to landmarks by the overlap of the detection with the box each
// landmark is predicted to produce.
type Associator struct {
	conf       AssociationConfig
	intrinsics *transform.PinholeCameraIntrinsics
	logger     logging.Logger

	mu      sync.Mutex
	nextKey factor.Key
}

// NewAssociator validates its inputs and returns an Associator. A nil logger logs to a sublogger of
// the global logger.
func NewAssociator(conf *AssociationConfig, intrinsics *transform.PinholeCameraIntrinsics, logger logging.Logger) (*Associator, error) {
	if conf == nil {
		return nil, errors.New("association config is required")
	}
	if err := multierr.Combine(conf.Validate("association"), intrinsics.CheckValid()); err != nil {
		return nil, err
	}
	c := *conf
	if c.Mode == "" {
		c.Mode = factor.SimpleMode
	}
	if logger == nil {
		logger = logging.Global().Sublogger("association")
	}
	intr := *intrinsics
	return &Associator{conf: c, intrinsics: &intr, logger: logger, nextKey: c.FirstLandmarkKey}, nil
}

func (a *Associator) allocateKey() factor.Key {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := a.nextKey
	a.nextKey++
	return k
}

// Predict returns the box each landmark would produce in a camera at pose. Landmarks that are not
// visible or whose box cannot be extracted are left out.
func (a *Associator) Predict(ctx context.Context, pose spatialmath.Pose, landmarks Landmarks) (map[factor.Key]spatialmath.AlignedBox2, error) {
	keys := landmarks.QuadricKeys()
	slices.Sort(keys)

	boxes := make([]*spatialmath.AlignedBox2, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	if a.conf.Parallelism > 0 {
		g.SetLimit(a.conf.Parallelism)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			q, err := landmarks.Quadric(key)
			if err != nil {
				return err
			}
			if err := q.Validate(); err != nil {
				a.logger.Debugw("landmark is not a valid quadric", "quadric_key", key, "error", err)
				return nil
			}
			if err := q.CheckVisible(pose); err != nil {
				a.logger.Debugw("landmark not visible", "quadric_key", key, "error", err)
				return nil
			}
			proj, err := transform.ProjectQuadric(q, pose, a.intrinsics, false, false)
			if err != nil {
				return err
			}
			var box spatialmath.AlignedBox2
			if a.conf.Mode == factor.StrictMode {
				box, _, err = proj.Conic.SmartBounds(a.intrinsics, false)
			} else {
				box, _, err = proj.Conic.Bounds(false)
			}
			if err != nil {
				a.logger.Debugw("cannot predict landmark box", "quadric_key", key, "error", err)
				return nil
			}
			boxes[i] = &box
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[factor.Key]spatialmath.AlignedBox2, len(keys))
	for i, key := range keys {
		if boxes[i] != nil {
			out[key] = *boxes[i]
		}
	}
	return out, nil
}

// Associate assigns every detection a landmark key. Detections are considered in decreasing
// score order and each landmark is matched at most once; a detection whose best overlap is below
// the threshold starts a new landmark. Associations are returned in detection order.
func (a *Associator) Associate(
	ctx context.Context,
	pose spatialmath.Pose,
	detections []Detection,
	landmarks Landmarks,
) ([]Association, error) {
	predicted, err := a.Predict(ctx, pose, landmarks)
	if err != nil {
		return nil, err
	}
	candidates := make([]factor.Key, 0, len(predicted))
	for k := range predicted {
		candidates = append(candidates, k)
	}
	slices.Sort(candidates)

	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(i, j int) int {
		return cmp.Compare(detections[j].Score(), detections[i].Score())
	})

	used := make(map[factor.Key]bool, len(predicted))
	out := make([]Association, len(detections))
	for _, idx := range order {
		det := detections[idx]
		best, bestIoU := factor.Key(0), 0.0
		for _, k := range candidates {
			if used[k] {
				continue
			}
			if iou := det.BoundingBox().IoU(predicted[k]); iou > bestIoU {
				best, bestIoU = k, iou
			}
		}
		if bestIoU >= a.conf.IoUThreshold {
			used[best] = true
			out[idx] = Association{Detection: det, QuadricKey: best, IoU: bestIoU, Predicted: predicted[best]}
			continue
		}
		key := a.allocateKey()
		a.logger.Debugw("starting new landmark", "quadric_key", key, "best_iou", bestIoU)
		out[idx] = Association{Detection: det, QuadricKey: key, New: true}
	}
	return out, nil
}

// Factors builds one bounding box factor per association, measured from the camera at poseKey.
func (a *Associator) Factors(associations []Association, poseKey factor.Key, sigmas ...float64) ([]*factor.BoundingBoxFactor, error) {
	out := make([]*factor.BoundingBoxFactor, 0, len(associations))
	for _, assoc := range associations {
		f, err := factor.NewBoundingBoxFactor(&factor.Config{
			Measured:   assoc.Detection.BoundingBox(),
			Intrinsics: a.intrinsics,
			PoseKey:    poseKey,
			QuadricKey: assoc.QuadricKey,
			Mode:       a.conf.Mode,
			Sigmas:     sigmas,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
