package postprocess

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-nms/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rects(rs ...geometry.Rect) []geometry.Shape {
	shapes := make([]geometry.Shape, len(rs))
	for i, r := range rs {
		shapes[i] = r
	}
	return shapes
}

// bruteForceGreedy is the quadratic reference the indexed suppressor must match.
func bruteForceGreedy(shapes []geometry.Shape, scores []float32, labels []int, thr float32, overlap func(a, b geometry.Shape) float32) []Kept {
	order := rankOrder(scores)
	suppressed := make([]bool, len(shapes))
	var kept []Kept
	for r, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, Kept{Index: i, Score: scores[i]})
		for _, j := range order[r+1:] {
			if !suppressed[j] && sameGroup(labels, i, j) && overlap(shapes[i], shapes[j]) > thr {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func TestGreedySuppressor(t *testing.T) {
	cfg := mustConfig(t, AlgorithmNMS, 0.5)
	s := cfg.Suppressor()
	require.NotNil(t, s)
	assert.Equal(t, AlgorithmNMS, s.Algorithm())

	tests := []struct {
		name   string
		shapes []geometry.Shape
		scores []float32
		labels []int
		want   []Kept
	}{
		{
			name:   "empty",
			shapes: nil,
			scores: nil,
			want:   []Kept{},
		},
		{
			name: "overlapping pair keeps the best",
			shapes: rects(
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
				geometry.Rect{X1: 1, Y1: 1, X2: 11, Y2: 11},
			),
			scores: []float32{0.6, 0.9},
			want:   []Kept{{Index: 1, Score: 0.9}},
		},
		{
			name: "overlap at the threshold survives",
			shapes: rects(
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 5},
			),
			scores: []float32{0.9, 0.8},
			want:   []Kept{{Index: 0, Score: 0.9}, {Index: 1, Score: 0.8}},
		},
		{
			name: "suppressed box does not suppress",
			shapes: rects(
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
				geometry.Rect{X1: 3, Y1: 0, X2: 13, Y2: 10},
				geometry.Rect{X1: 6, Y1: 0, X2: 16, Y2: 10},
			),
			scores: []float32{0.9, 0.8, 0.7},
			want:   []Kept{{Index: 0, Score: 0.9}, {Index: 2, Score: 0.7}},
		},
		{
			name: "labels keep groups apart",
			shapes: rects(
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			),
			scores: []float32{0.9, 0.8, 0.7},
			labels: []int{0, 1, 0},
			want:   []Kept{{Index: 0, Score: 0.9}, {Index: 1, Score: 0.8}},
		},
		{
			name: "ties keep input order",
			shapes: rects(
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
				geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			),
			scores: []float32{0.5, 0.5},
			want:   []Kept{{Index: 0, Score: 0.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Suppress(tt.shapes, tt.scores, tt.labels))
		})
	}
}

func TestGreedySuppressor_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for _, alg := range []Algorithm{AlgorithmNMS, AlgorithmRotatedNMS} {
		for _, thr := range []float32{0, 0.3, 0.7} {
			cfg := mustConfig(t, alg, thr)
			overlap := geometry.EnvelopeIoU
			if alg == AlgorithmRotatedNMS {
				overlap = geometry.IoU
			}

			for trial := 0; trial < 5; trial++ {
				n := 40 + rng.Intn(60)
				shapes := make([]geometry.Shape, n)
				scores := make([]float32, n)
				labels := make([]int, n)
				for i := range shapes {
					shapes[i] = geometry.RotatedRect{
						CX:    rng.Float32() * 100,
						CY:    rng.Float32() * 100,
						W:     5 + rng.Float32()*30,
						H:     5 + rng.Float32()*30,
						Angle: rng.Float32() * math32.Pi,
					}
					// Coarse scores so ties happen.
					scores[i] = float32(rng.Intn(20)) / 20
					labels[i] = rng.Intn(3)
				}

				want := bruteForceGreedy(shapes, scores, labels, thr, overlap)
				got := cfg.Suppressor().Suppress(shapes, scores, labels)
				assert.Equal(t, want, got, "%s thr=%v trial=%d", alg, thr, trial)

				want = bruteForceGreedy(shapes, scores, nil, thr, overlap)
				got = cfg.Suppressor().Suppress(shapes, scores, nil)
				assert.Equal(t, want, got, "%s thr=%v trial=%d without labels", alg, thr, trial)
			}
		}
	}
}

func TestRotatedSuppressor_ExactOverlap(t *testing.T) {
	// Two thin diagonal boxes crossing at right angles: their envelopes are
	// identical but the outlines barely meet.
	shapes := []geometry.Shape{
		geometry.RotatedRect{CX: 0, CY: 0, W: 40, H: 2, Angle: math32.Pi / 4},
		geometry.RotatedRect{CX: 0, CY: 0, W: 40, H: 2, Angle: -math32.Pi / 4},
	}
	scores := []float32{0.9, 0.8}

	envelope := mustConfig(t, AlgorithmNMS, 0.5)
	assert.Len(t, envelope.Suppressor().Suppress(shapes, scores, nil), 1)

	exact := mustConfig(t, AlgorithmRotatedNMS, 0.5)
	assert.Len(t, exact.Suppressor().Suppress(shapes, scores, nil), 2)
}

func TestSoftSuppressor(t *testing.T) {
	shapes := rects(
		geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
		geometry.Rect{X1: 5, Y1: 0, X2: 15, Y2: 10},
		geometry.Rect{X1: 100, Y1: 100, X2: 110, Y2: 110},
	)
	scores := []float32{0.9, 0.8, 0.85}

	t.Run("linear", func(t *testing.T) {
		cfg := mustConfig(t, AlgorithmSoftNMS, 0.3)
		kept := cfg.Suppressor().Suppress(shapes, scores, nil)
		require.Len(t, kept, 3)
		assert.Equal(t, []int{0, 2, 1}, []int{kept[0].Index, kept[1].Index, kept[2].Index})
		assert.InDelta(t, 0.8*(1-1.0/3.0), kept[2].Score, 1e-5)
	})

	t.Run("linear below threshold leaves scores alone", func(t *testing.T) {
		cfg := mustConfig(t, AlgorithmSoftNMS, 0.5)
		kept := cfg.Suppressor().Suppress(shapes, scores, nil)
		require.Len(t, kept, 3)
		assert.Equal(t, float32(0.8), kept[2].Score)
	})

	t.Run("gaussian", func(t *testing.T) {
		cfg := mustConfig(t, AlgorithmSoftNMS, 0.3,
			WithSoftParams(SoftParams{Method: SoftGaussian, Sigma: 0.5, MinScore: 1e-3}))
		kept := cfg.Suppressor().Suppress(shapes, scores, nil)
		require.Len(t, kept, 3)
		assert.InDelta(t, 0.8*math32.Exp(-(1.0/9.0)/0.5), kept[2].Score, 1e-5)
	})

	t.Run("decayed below min score is dropped", func(t *testing.T) {
		cfg := mustConfig(t, AlgorithmSoftNMS, 0.3)
		same := rects(
			geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
		)
		kept := cfg.Suppressor().Suppress(same, []float32{0.9, 0.8}, nil)
		assert.Equal(t, []Kept{{Index: 0, Score: 0.9}}, kept)
	})

	t.Run("labels keep groups apart", func(t *testing.T) {
		cfg := mustConfig(t, AlgorithmSoftNMS, 0.3)
		kept := cfg.Suppressor().Suppress(shapes, scores, []int{0, 1, 0})
		require.Len(t, kept, 3)
		assert.Equal(t, float32(0.8), kept[2].Score)
	})
}

func TestBatchedNMS(t *testing.T) {
	boxes := []geometry.Rect{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 1, Y1: 1, X2: 11, Y2: 11},
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
	}
	scores := []float32{0.7, 0.9, 0.8}
	labels := []int{0, 0, 1}

	cfg := mustConfig(t, AlgorithmNMS, 0.5)
	dets, keep, err := BatchedNMS(boxes, scores, labels, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, keep)
	assert.Equal(t, [][]float32{
		{1, 1, 11, 11, 0.9},
		{0, 0, 10, 10, 0.8},
	}, dets.ToRows())

	agnostic := mustConfig(t, AlgorithmNMS, 0.5, WithClassAgnostic(true))
	_, keep, err = BatchedNMS(boxes, scores, labels, agnostic)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, keep)

	_, _, err = BatchedNMS(boxes, scores[:2], labels, cfg)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = BatchedNMS(boxes, scores, labels, NMSConfig{})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
