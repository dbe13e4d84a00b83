package postprocess

import (
	"github.com/nvr-ai/go-nms/geometry"
	"github.com/pkg/errors"
)

// BatchedNMS suppresses boxes of many classes in one pass.
//
// Classes are kept apart by shifting every label group into its own
// coordinate range before neighbours are searched, and by refusing to
// compare boxes of different labels, so boxes of different classes never
// suppress each other however much they overlap. A class-agnostic config
// drops the separation.
//
// Arguments:
//   - boxes: The candidate boxes.
//   - scores: The ranking score of each box.
//   - labels: The class of each box.
//   - cfg: The suppression configuration.
//
// Returns:
//   - Matrix: The kept boxes as (x1, y1, x2, y2, score) rows, best first.
//   - []int: The input index of every kept row.
//   - error: ErrUnsupportedAlgorithm when cfg was not built by NewNMSConfig.
func BatchedNMS(boxes []geometry.Rect, scores []float32, labels []int, cfg NMSConfig) (Matrix, []int, error) {
	if cfg.suppressor == nil {
		return Matrix{}, nil, errors.Wrap(ErrUnsupportedAlgorithm, "nms config was not constructed")
	}
	if len(scores) != len(boxes) || len(labels) != len(boxes) {
		return Matrix{}, nil, errors.Wrapf(ErrShapeMismatch,
			"%d boxes, %d scores and %d labels", len(boxes), len(scores), len(labels))
	}

	shapes := make([]geometry.Shape, len(boxes))
	for i, b := range boxes {
		shapes[i] = b
	}
	groups := labels
	if cfg.classAgnostic {
		groups = nil
	}

	kept := cfg.suppressor.Suppress(shapes, scores, groups)

	data := make([]float32, 0, len(kept)*5)
	keep := make([]int, len(kept))
	for r, k := range kept {
		b := boxes[k.Index]
		data = append(data, b.X1, b.Y1, b.X2, b.Y2, k.Score)
		keep[r] = k.Index
	}
	return Matrix{rows: len(kept), cols: 5, data: data}, keep, nil
}

// suppressAxisAligned runs the axis-aligned path over the score matrix.
//
// Score factors multiply the whole score matrix before the confidence gate,
// which itself only reads the raw scores. Surviving pairs are suppressed in
// one batched pass and the result is cut to maxNum rows when maxNum > 0.
func suppressAxisAligned(
	boxes, scores Matrix,
	l layout,
	scoreThr float32,
	cfg NMSConfig,
	maxNum int,
	factors []float32,
) (Detections, Stats, error) {
	stats := Stats{Kind: KindAxisAligned, Candidates: boxes.Rows()}

	adjusted := scores
	if factors != nil {
		adjusted = scores.scaleRows(factors)
	}
	pairs := FilterScores(scores, l.foreground(), scoreThr, nil)
	stats.Passed = len(pairs)

	if len(pairs) == 0 {
		return emptyDetections(5), stats, nil
	}

	rects := make([]geometry.Rect, len(pairs))
	ranked := make([]float32, len(pairs))
	labels := make([]int, len(pairs))
	for k, p := range pairs {
		b := l.box(boxes, p.Candidate, Slot{Column: p.Column, Label: p.Label})
		rects[k] = geometry.Rect{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}
		ranked[k] = adjusted.At(p.Candidate, p.Column)
		labels[k] = p.Label
	}

	dets, keep, err := BatchedNMS(rects, ranked, labels, cfg)
	if err != nil {
		return Detections{}, stats, err
	}

	if maxNum > 0 && dets.rows > maxNum {
		dets = Matrix{rows: maxNum, cols: dets.cols, data: dets.data[:maxNum*dets.cols]}
		keep = keep[:maxNum]
	}

	out := Detections{Boxes: dets, Labels: make([]int, len(keep))}
	for r, k := range keep {
		out.Labels[r] = labels[k]
	}
	stats.Detections = out.Len()
	return out, stats, nil
}
