package postprocess

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Algorithm identifies a suppression variant.
type Algorithm string

const (
	// AlgorithmNMS is hard greedy NMS measuring overlap on axis-aligned
	// envelopes. Rotated boxes are compared by their bounding rectangles.
	AlgorithmNMS Algorithm = "nms"
	// AlgorithmRotatedNMS is hard greedy NMS measuring overlap on the exact
	// box outlines, rotated or not.
	AlgorithmRotatedNMS Algorithm = "rotated_nms"
	// AlgorithmSoftNMS decays the scores of overlapping boxes instead of
	// dropping them outright.
	AlgorithmSoftNMS Algorithm = "soft_nms"
)

// aliases accepts the names older detector configs use for the same variants.
var aliases = map[string]Algorithm{
	"nms":         AlgorithmNMS,
	"rotated_nms": AlgorithmRotatedNMS,
	"rnms":        AlgorithmRotatedNMS,
	"poly_nms":    AlgorithmRotatedNMS,
	"soft_nms":    AlgorithmSoftNMS,
}

// ParseAlgorithm resolves an algorithm identifier.
func ParseAlgorithm(name string) (Algorithm, error) {
	alg, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", errors.Wrapf(ErrUnsupportedAlgorithm, "%q", name)
	}
	return alg, nil
}

// SoftMethod selects the soft-NMS decay function.
type SoftMethod string

const (
	// SoftLinear multiplies a score by (1 - IoU) once IoU exceeds the threshold.
	SoftLinear SoftMethod = "linear"
	// SoftGaussian multiplies a score by exp(-IoU² / sigma).
	SoftGaussian SoftMethod = "gaussian"
)

// SoftParams holds the soft-NMS specific parameters.
type SoftParams struct {
	Method   SoftMethod
	Sigma    float32
	MinScore float32
}

// DefaultSoftParams returns the usual soft-NMS parameters.
func DefaultSoftParams() SoftParams {
	return SoftParams{Method: SoftLinear, Sigma: 0.5, MinScore: 1e-3}
}

// NMSConfig is an immutable suppression configuration. Build one with
// NewNMSConfig or ParseNMSConfig; the zero value is not usable.
type NMSConfig struct {
	algorithm     Algorithm
	iouThreshold  float32
	classAgnostic bool
	soft          SoftParams
	suppressor    Suppressor
}

// ConfigOption adjusts an NMSConfig while it is being built.
type ConfigOption func(*NMSConfig)

// WithSoftParams sets the soft-NMS parameters.
func WithSoftParams(p SoftParams) ConfigOption {
	return func(c *NMSConfig) {
		c.soft = p
	}
}

// WithClassAgnostic lets boxes of different classes suppress each other on
// the batched axis-aligned path.
func WithClassAgnostic(agnostic bool) ConfigOption {
	return func(c *NMSConfig) {
		c.classAgnostic = agnostic
	}
}

// NewNMSConfig validates the parameters and binds the suppressor for alg.
//
// Arguments:
//   - alg: The suppression variant.
//   - iouThreshold: Overlap above which a lower-ranked box is suppressed, in [0, 1].
//   - opts: Optional variant parameters.
//
// Returns:
//   - NMSConfig: The ready-to-use configuration.
//   - error: ErrUnsupportedAlgorithm or ErrInvalidConfig.
func NewNMSConfig(alg Algorithm, iouThreshold float32, opts ...ConfigOption) (NMSConfig, error) {
	c := NMSConfig{
		algorithm:    alg,
		iouThreshold: iouThreshold,
		soft:         DefaultSoftParams(),
	}
	for _, opt := range opts {
		opt(&c)
	}

	if iouThreshold < 0 || iouThreshold > 1 {
		return NMSConfig{}, errors.Wrapf(ErrInvalidConfig, "iou threshold %v outside [0, 1]", iouThreshold)
	}

	build, ok := registry[alg]
	if !ok {
		return NMSConfig{}, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", alg)
	}
	s, err := build(c)
	if err != nil {
		return NMSConfig{}, err
	}
	c.suppressor = s
	return c, nil
}

// ParseNMSConfig builds a configuration from a loosely typed description,
// as found in detector config files.
//
// Recognised extra keys are "method", "sigma", "min_score" and
// "class_agnostic". Unknown keys are rejected so typos fail loudly.
func ParseNMSConfig(name string, iouThreshold float32, extra map[string]any) (NMSConfig, error) {
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return NMSConfig{}, err
	}

	soft := DefaultSoftParams()
	agnostic := false
	for key, value := range extra {
		switch key {
		case "method":
			s, ok := value.(string)
			if !ok {
				return NMSConfig{}, errors.Wrapf(ErrInvalidConfig, "method must be a string, got %T", value)
			}
			soft.Method = SoftMethod(strings.ToLower(s))
		case "sigma":
			f, err := toFloat32(value)
			if err != nil {
				return NMSConfig{}, errors.Wrap(err, "sigma")
			}
			soft.Sigma = f
		case "min_score":
			f, err := toFloat32(value)
			if err != nil {
				return NMSConfig{}, errors.Wrap(err, "min_score")
			}
			soft.MinScore = f
		case "class_agnostic":
			b, ok := value.(bool)
			if !ok {
				return NMSConfig{}, errors.Wrapf(ErrInvalidConfig, "class_agnostic must be a bool, got %T", value)
			}
			agnostic = b
		default:
			return NMSConfig{}, errors.Wrapf(ErrInvalidConfig, "unknown parameter %q", key)
		}
	}

	return NewNMSConfig(alg, iouThreshold, WithSoftParams(soft), WithClassAgnostic(agnostic))
}

func toFloat32(v any) (float32, error) {
	switch n := v.(type) {
	case float32:
		return n, nil
	case float64:
		return float32(n), nil
	case int:
		return float32(n), nil
	default:
		return 0, errors.Wrapf(ErrInvalidConfig, "expected a number, got %T", v)
	}
}

// Algorithm returns the suppression variant.
func (c NMSConfig) Algorithm() Algorithm { return c.algorithm }

// IoUThreshold returns the suppression overlap threshold.
func (c NMSConfig) IoUThreshold() float32 { return c.iouThreshold }

// ClassAgnostic reports whether classes may suppress each other on the
// batched path.
func (c NMSConfig) ClassAgnostic() bool { return c.classAgnostic }

// Soft returns the soft-NMS parameters.
func (c NMSConfig) Soft() SoftParams { return c.soft }

// Suppressor returns the bound suppression primitive, or nil for the zero value.
func (c NMSConfig) Suppressor() Suppressor { return c.suppressor }

func (c NMSConfig) String() string {
	return fmt.Sprintf("%s(iou=%.3f)", c.algorithm, c.iouThreshold)
}
