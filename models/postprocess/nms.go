// Package postprocess - Confidence filtering and Non-Maximum Suppression for
// multi-class detector outputs.
package postprocess

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-nms/geometry"
	"github.com/pkg/errors"
)

// Kept is a box that survived suppression.
type Kept struct {
	// Index is the position of the box in the suppressor input.
	Index int
	// Score is the final score; soft-NMS may have decayed it.
	Score float32
}

// Suppressor is one NMS variant.
type Suppressor interface {
	// Algorithm names the variant.
	Algorithm() Algorithm
	// Suppress ranks the boxes by score and returns the survivors in rank
	// order. Boxes whose labels differ never interact; a nil labels slice
	// puts every box in the same group.
	Suppress(shapes []geometry.Shape, scores []float32, labels []int) []Kept
}

// registry binds every supported Algorithm to its suppressor.
var registry = map[Algorithm]func(NMSConfig) (Suppressor, error){
	AlgorithmNMS: func(c NMSConfig) (Suppressor, error) {
		return &greedySuppressor{algorithm: AlgorithmNMS, threshold: c.iouThreshold, overlap: geometry.EnvelopeIoU}, nil
	},
	AlgorithmRotatedNMS: func(c NMSConfig) (Suppressor, error) {
		return &greedySuppressor{algorithm: AlgorithmRotatedNMS, threshold: c.iouThreshold, overlap: geometry.IoU}, nil
	},
	AlgorithmSoftNMS: newSoftSuppressor,
}

// rankOrder returns box indices by descending score. Equal scores keep
// their input order.
func rankOrder(scores []float32) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

func sameGroup(labels []int, i, j int) bool {
	return labels == nil || labels[i] == labels[j]
}

// neighborIndex finds boxes whose envelopes touch. Each label group is
// shifted along x by a multiple of the coordinate span so groups can never
// meet in the index.
type neighborIndex struct {
	fb     *flatbush.Flatbush64
	bounds [][4]float64
}

func newNeighborIndex(shapes []geometry.Shape, labels []int) *neighborIndex {
	idx := &neighborIndex{bounds: make([][4]float64, len(shapes))}
	if len(shapes) == 0 {
		return idx
	}

	lo, hi := math32.Inf(1), math32.Inf(-1)
	for i, s := range shapes {
		b := s.Bounds()
		idx.bounds[i] = [4]float64{float64(b.X1), float64(b.Y1), float64(b.X2), float64(b.Y2)}
		lo = min(lo, b.X1, b.Y1)
		hi = max(hi, b.X2, b.Y2)
	}
	span := float64(hi-lo) + 1

	idx.fb = flatbush.NewFlatbush64()
	idx.fb.Reserve(len(shapes))
	for i, b := range idx.bounds {
		if labels != nil {
			offset := float64(labels[i]) * span
			b[0] += offset
			b[2] += offset
			idx.bounds[i] = b
		}
		idx.fb.Add(b[0], b[1], b[2], b[3])
	}
	idx.fb.Finish()
	return idx
}

// neighbors returns the boxes whose envelope touches the envelope of box i,
// box i included.
func (n *neighborIndex) neighbors(i int) []int {
	if n.fb == nil {
		return nil
	}
	b := n.bounds[i]
	return n.fb.Search(b[0], b[1], b[2], b[3])
}

// greedySuppressor keeps the best remaining box and drops every lower-ranked
// box of its group that overlaps it by more than threshold.
type greedySuppressor struct {
	algorithm Algorithm
	threshold float32
	overlap   func(a, b geometry.Shape) float32
}

func (s *greedySuppressor) Algorithm() Algorithm { return s.algorithm }

func (s *greedySuppressor) Suppress(shapes []geometry.Shape, scores []float32, labels []int) []Kept {
	n := len(shapes)
	kept := make([]Kept, 0, n)
	if n == 0 {
		return kept
	}

	order := rankOrder(scores)
	rank := make([]int, n)
	for r, i := range order {
		rank[i] = r
	}

	idx := newNeighborIndex(shapes, labels)
	suppressed := make([]bool, n)

	for _, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, Kept{Index: i, Score: scores[i]})

		for _, j := range idx.neighbors(i) {
			// Higher-ranked boxes are already settled.
			if rank[j] <= rank[i] || suppressed[j] || !sameGroup(labels, i, j) {
				continue
			}
			if s.overlap(shapes[i], shapes[j]) > s.threshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

// softSuppressor repeatedly keeps the best remaining box and decays the
// scores of its overlapping neighbours. Boxes decayed below MinScore are
// dropped.
type softSuppressor struct {
	threshold float32
	params    SoftParams
}

func newSoftSuppressor(c NMSConfig) (Suppressor, error) {
	p := c.soft
	switch p.Method {
	case SoftLinear:
	case SoftGaussian:
		if p.Sigma <= 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "soft-nms sigma must be positive, got %v", p.Sigma)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown soft-nms method %q", p.Method)
	}
	if p.MinScore < 0 || p.MinScore >= 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "soft-nms min score %v outside [0, 1)", p.MinScore)
	}
	return &softSuppressor{threshold: c.iouThreshold, params: p}, nil
}

func (s *softSuppressor) Algorithm() Algorithm { return AlgorithmSoftNMS }

func (s *softSuppressor) weight(iou float32) float32 {
	if s.params.Method == SoftGaussian {
		return math32.Exp(-(iou * iou) / s.params.Sigma)
	}
	if iou > s.threshold {
		return 1 - iou
	}
	return 1
}

func (s *softSuppressor) Suppress(shapes []geometry.Shape, scores []float32, labels []int) []Kept {
	n := len(shapes)
	kept := make([]Kept, 0, n)
	if n == 0 {
		return kept
	}

	work := make([]float32, n)
	copy(work, scores)
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}

	idx := newNeighborIndex(shapes, labels)

	for {
		best := -1
		for i := 0; i < n; i++ {
			if alive[i] && (best < 0 || work[i] > work[best]) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		alive[best] = false
		kept = append(kept, Kept{Index: best, Score: work[best]})

		for _, j := range idx.neighbors(best) {
			if !alive[j] || !sameGroup(labels, best, j) {
				continue
			}
			work[j] *= s.weight(geometry.IoU(shapes[best], shapes[j]))
			if work[j] < s.params.MinScore {
				alive[j] = false
			}
		}
	}

	return kept
}
