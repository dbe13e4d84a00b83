package postprocess

import "github.com/pkg/errors"

var (
	// ErrUnsupportedAlgorithm is returned for unknown suppression algorithms and
	// for configs that were not built by NewNMSConfig.
	ErrUnsupportedAlgorithm = errors.New("unsupported nms algorithm")
	// ErrInvalidBoxEncoding is returned when the box column width matches
	// neither the axis-aligned nor the rotated layout.
	ErrInvalidBoxEncoding = errors.New("invalid box encoding")
	// ErrShapeMismatch is returned when boxes, scores and score factors do not
	// describe the same candidates.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidConfig is returned for out-of-range suppression parameters.
	ErrInvalidConfig = errors.New("invalid nms config")
)

// ErrorKind maps an error onto a short, stable name suitable for metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return "unsupported_algorithm"
	case errors.Is(err, ErrInvalidBoxEncoding):
		return "invalid_box_encoding"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	default:
		return "other"
	}
}
