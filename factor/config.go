package factor

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/quadricslam/rimage/transform"
	"go.viam.com/quadricslam/spatialmath"
)

// MeasurementMode selects how the predicted box is extracted from the projected conic.
type MeasurementMode string

const (
	// SimpleMode always uses the closed-form conic bounds.
	SimpleMode = MeasurementMode("simple")
	// StrictMode uses the bounds of the part of the conic visible in the image and rejects
	// configurations where no valid extremum exists.
	StrictMode = MeasurementMode("strict")
)

// Config describes a bounding box measurement of one quadric from one camera pose.
type Config struct {
	Measured      spatialmath.AlignedBox2            `json:"measured"`
	Intrinsics    *transform.PinholeCameraIntrinsics `json:"intrinsics"`
	PoseKey       Key                                `json:"pose_key"`
	QuadricKey    Key                                `json:"quadric_key"`
	Mode          MeasurementMode                    `json:"mode,omitempty"`
	Sigmas        []float64                          `json:"sigmas,omitempty"`
	CheckGeometry bool                               `json:"check_geometry,omitempty"`
}

// Validate ensures all parts of the config are valid. Every problem is reported.
func (conf *Config) Validate(path string) error {
	var errs error
	m := conf.Measured
	if _, err := spatialmath.NewAlignedBox2(m.Xmin, m.Ymin, m.Xmax, m.Ymax); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".measured", err))
	}
	if conf.Intrinsics == nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "intrinsics"))
	} else if err := conf.Intrinsics.CheckValid(); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".intrinsics", err))
	}
	switch conf.Mode {
	case "", SimpleMode, StrictMode:
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("unknown mode %q, expected %q or %q", conf.Mode, SimpleMode, StrictMode)))
	}
	if len(conf.Sigmas) != 0 {
		if _, err := NewDiagonalNoise(conf.Sigmas...); err != nil {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".sigmas", err))
		}
	}
	return errs
}

// NewConfigFromAttributes decodes a Config from a generic attribute map using its json tags.
func NewConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &conf})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode bounding box factor config")
	}
	return &conf, nil
}

// DiagonalNoise is an independent Gaussian noise model on the four box coordinates.
type DiagonalNoise struct {
	sigmas [4]float64
}

// NewDiagonalNoise returns a noise model with the given standard deviations. A single sigma is
// used for every coordinate.
func NewDiagonalNoise(sigmas ...float64) (DiagonalNoise, error) {
	var out DiagonalNoise
	switch len(sigmas) {
	case 1:
		out.sigmas = [4]float64{sigmas[0], sigmas[0], sigmas[0], sigmas[0]}
	case 4:
		copy(out.sigmas[:], sigmas)
	default:
		return DiagonalNoise{}, errors.Errorf("expected 1 or 4 sigmas, got %d", len(sigmas))
	}
	for _, s := range out.sigmas {
		if !(s > 0) {
			return DiagonalNoise{}, errors.Errorf("sigmas must be positive, got %v", sigmas)
		}
	}
	return out, nil
}

// UnitNoise returns the noise model with unit sigmas.
func UnitNoise() DiagonalNoise {
	return DiagonalNoise{sigmas: [4]float64{1, 1, 1, 1}}
}

// Sigmas returns the standard deviations.
func (n DiagonalNoise) Sigmas() [4]float64 {
	return n.sigmas
}

// Whiten divides each residual component by its sigma.
func (n DiagonalNoise) Whiten(residual [4]float64) [4]float64 {
	for i := range residual {
		residual[i] /= n.sigmas[i]
	}
	return residual
}
