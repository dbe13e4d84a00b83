package postprocess

import (
	"github.com/pkg/errors"
)

type runOptions struct {
	encoding Encoding
	workers  int
}

// Option tunes a MulticlassNMS call.
type Option func(*runOptions)

// WithEncoding states the box layout instead of inferring it from the
// column width. The width is still checked against the stated layout.
func WithEncoding(e Encoding) Option {
	return func(o *runOptions) {
		o.encoding = e
	}
}

// WithWorkers processes up to n rotated classes concurrently. Output is
// identical to the sequential run.
func WithWorkers(n int) Option {
	return func(o *runOptions) {
		o.workers = n
	}
}

// MulticlassNMS turns dense per-candidate scores and boxes into the final
// per-class detections of one image.
//
// Axis-aligned boxes go through one batched suppression pass and come back
// as (x1, y1, x2, y2, score) rows sorted by score. Rotated boxes are
// suppressed class by class and come back as (x1, y1, ..., x4, y4, score)
// polygon rows. Labels are 0-based and never name the background column.
//
// Arguments:
//   - bboxes: N × 4, N × 4C, N × 5 or N × 5(C+1) boxes.
//   - scores: N × (C+1) class scores, one column being background.
//   - scoreThr: Pairs with a raw score at or below this are dropped.
//   - cfg: The suppression configuration.
//   - maxNum: Maximum detections returned; zero or negative means unlimited.
//   - factors: Optional per-candidate score multipliers, length N.
//   - opts: Box layout and concurrency options.
//
// Returns:
//   - Detections: The kept detections. No candidates or no survivors yields
//     zero rows of the right width, not an error.
//   - error: ErrShapeMismatch, ErrInvalidBoxEncoding or ErrUnsupportedAlgorithm.
//
// Example:
//
// ```go
//
//	cfg, _ := NewNMSConfig(AlgorithmNMS, 0.5)
//	dets, err := MulticlassNMS(boxes, scores, 0.05, cfg, 100, nil)
//	if err != nil {
//	    return err
//	}
//	for _, r := range dets.Results() {
//	    fmt.Println(r.Class, r.Score, r.Coords)
//	}
//
// ```
func MulticlassNMS(
	bboxes, scores Matrix,
	scoreThr float32,
	cfg NMSConfig,
	maxNum int,
	factors []float32,
	opts ...Option,
) (Detections, error) {
	dets, _, err := multiclassNMS(bboxes, scores, scoreThr, cfg, maxNum, factors, opts...)
	return dets, err
}

func multiclassNMS(
	bboxes, scores Matrix,
	scoreThr float32,
	cfg NMSConfig,
	maxNum int,
	factors []float32,
	opts ...Option,
) (Detections, Stats, error) {
	o := runOptions{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.suppressor == nil {
		return Detections{}, Stats{}, errors.Wrap(ErrUnsupportedAlgorithm, "nms config was not constructed")
	}
	if bboxes.Rows() != scores.Rows() {
		return Detections{}, Stats{}, errors.Wrapf(ErrShapeMismatch,
			"%d box rows but %d score rows", bboxes.Rows(), scores.Rows())
	}
	if factors != nil && len(factors) != scores.Rows() {
		return Detections{}, Stats{}, errors.Wrapf(ErrShapeMismatch,
			"%d score factors for %d candidates", len(factors), scores.Rows())
	}

	if scores.Rows() == 0 {
		kind := emptyKind(o.encoding, bboxes.Cols(), scores.Cols())
		width := 5
		if kind == KindRotated {
			width = 9
		}
		return emptyDetections(width), Stats{Kind: kind}, nil
	}

	l, err := o.encoding.resolve(bboxes.Cols(), scores.Cols())
	if err != nil {
		return Detections{}, Stats{}, err
	}

	if l.kind == KindAxisAligned {
		return suppressAxisAligned(bboxes, scores, l, scoreThr, cfg, maxNum, factors)
	}
	return suppressRotated(bboxes, scores, l, scoreThr, cfg, maxNum, factors, o.workers)
}

// emptyKind picks the output kind for a frame without candidates. Zero-row
// matrices decoded from an empty payload carry no widths, so an explicit
// kind wins and the axis-aligned path is the fallback.
func emptyKind(e Encoding, boxCols, scoreCols int) Kind {
	if l, err := e.resolve(boxCols, scoreCols); err == nil {
		return l.kind
	}
	if e.Kind != KindAuto {
		return e.Kind
	}
	if boxCols > 0 && boxCols%4 != 0 {
		return KindRotated
	}
	return KindAxisAligned
}
