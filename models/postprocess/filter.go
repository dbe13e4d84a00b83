package postprocess

// Pair is one (candidate, class) combination that passed the confidence gate.
type Pair struct {
	// Candidate is the row index in the input matrices.
	Candidate int
	// Column is the score column the pair came from.
	Column int
	// Label is the 0-based foreground class.
	Label int
	// Score is the ranking score, after any score factor.
	Score float32
}

// FilterScores gates every foreground (candidate, class) pair on its raw
// score.
//
// A pair survives when its raw score is strictly greater than threshold.
// When factors is non-nil the surviving score is raw * factors[candidate];
// the gate itself never looks at the factor. Pairs come out in row-major
// order: candidate first, then class.
//
// Arguments:
//   - scores: The N × (C+1) score matrix, background included.
//   - slots: The foreground columns to consider.
//   - threshold: The confidence cut-off.
//   - factors: Optional per-candidate multipliers, length N.
//
// Returns:
//   - The surviving pairs. No survivors yields an empty slice.
func FilterScores(scores Matrix, slots []Slot, threshold float32, factors []float32) []Pair {
	pairs := make([]Pair, 0)
	for i := 0; i < scores.Rows(); i++ {
		row := scores.Row(i)
		for _, s := range slots {
			raw := row[s.Column]
			if !(raw > threshold) {
				continue
			}
			score := raw
			if factors != nil {
				score *= factors[i]
			}
			pairs = append(pairs, Pair{Candidate: i, Column: s.Column, Label: s.Label, Score: score})
		}
	}
	return pairs
}
