package postprocess

import (
	"sort"
	"sync"

	"github.com/nvr-ai/go-nms/geometry"
	"github.com/pkg/errors"
)

// classDetections holds the polygon rows one foreground class produced.
type classDetections struct {
	rows   [][9]float32
	passed int
	err    error
}

// suppressClass runs threshold, suppression and polygon conversion for a
// single rotated class. Score factors are applied to the selected scores
// only, after the confidence gate.
func suppressClass(boxes, scores Matrix, l layout, s Slot, scoreThr float32, cfg NMSConfig, factors []float32) classDetections {
	pairs := FilterScores(scores, []Slot{s}, scoreThr, nil)
	if len(pairs) == 0 {
		return classDetections{}
	}

	rects := make([]geometry.RotatedRect, len(pairs))
	shapes := make([]geometry.Shape, len(pairs))
	ranked := make([]float32, len(pairs))
	for k, p := range pairs {
		rr, err := geometry.NewRotatedRect(l.box(boxes, p.Candidate, s))
		if err != nil {
			return classDetections{err: errors.Wrapf(ErrInvalidBoxEncoding, "candidate %d: %v", p.Candidate, err)}
		}
		rects[k] = rr
		shapes[k] = rects[k]
		ranked[k] = p.Score
		if factors != nil {
			ranked[k] *= factors[p.Candidate]
		}
	}

	kept := cfg.suppressor.Suppress(shapes, ranked, nil)

	out := classDetections{rows: make([][9]float32, len(kept)), passed: len(pairs)}
	for r, k := range kept {
		rr := rects[k.Index]
		out.rows[r] = geometry.ToPolygon(rr.CX, rr.CY, rr.W, rr.H, rr.Angle, k.Score)
	}
	return out
}

// suppressRotated runs the rotated path: every foreground class is
// thresholded and suppressed on its own, survivors become 9-value polygon
// rows labelled with their 0-based class, and the accumulated rows are cut
// to the maxNum best across all classes when there are too many.
//
// With workers > 1 classes are processed concurrently. Results are always
// gathered in class order, so the output does not depend on scheduling.
func suppressRotated(
	boxes, scores Matrix,
	l layout,
	scoreThr float32,
	cfg NMSConfig,
	maxNum int,
	factors []float32,
	workers int,
) (Detections, Stats, error) {
	stats := Stats{Kind: KindRotated, Candidates: boxes.Rows()}
	slots := l.foreground()
	perClass := make([]classDetections, len(slots))

	if workers <= 1 || len(slots) <= 1 {
		for c, s := range slots {
			perClass[c] = suppressClass(boxes, scores, l, s, scoreThr, cfg, factors)
		}
	} else {
		jobs := make(chan int, len(slots))
		var wg sync.WaitGroup
		for w := 0; w < min(workers, len(slots)); w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for c := range jobs {
					perClass[c] = suppressClass(boxes, scores, l, slots[c], scoreThr, cfg, factors)
				}
			}()
		}
		for c := range slots {
			jobs <- c
		}
		close(jobs)
		wg.Wait()
	}

	var rows [][9]float32
	var labels []int
	for c, cd := range perClass {
		if cd.err != nil {
			return Detections{}, Stats{}, cd.err
		}
		stats.Passed += cd.passed
		for _, row := range cd.rows {
			rows = append(rows, row)
			labels = append(labels, slots[c].Label)
		}
	}

	if len(rows) == 0 {
		return emptyDetections(9), stats, nil
	}

	if maxNum > 0 && len(rows) > maxNum {
		order := make([]int, len(rows))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return rows[order[a]][8] > rows[order[b]][8]
		})
		order = order[:maxNum]

		topRows := make([][9]float32, maxNum)
		topLabels := make([]int, maxNum)
		for r, i := range order {
			topRows[r] = rows[i]
			topLabels[r] = labels[i]
		}
		rows, labels = topRows, topLabels
	}

	data := make([]float32, 0, len(rows)*9)
	for _, row := range rows {
		data = append(data, row[:]...)
	}
	out := Detections{Boxes: Matrix{rows: len(rows), cols: 9, data: data}, Labels: labels}
	stats.Detections = out.Len()
	return out, stats, nil
}
