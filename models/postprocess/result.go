// Package postprocess - Postprocessing utilities for detector outputs.
package postprocess

// Result represents a single detection result.
type Result struct {
	// Coords are the box coordinates: (x1, y1, x2, y2) for axis-aligned boxes
	// or the four polygon corners (x1, y1, ..., x4, y4) for rotated boxes.
	Coords []float32
	// The confidence score of the result.
	Score float32
	// The 0-based foreground class of the result.
	Class int
}

// Detections is the output of a suppression run: one row per detection,
// 5 wide (x1, y1, x2, y2, score) or 9 wide (four corners, score), and the
// matching labels.
type Detections struct {
	Boxes  Matrix
	Labels []int
}

func emptyDetections(width int) Detections {
	return Detections{Boxes: EmptyMatrix(width), Labels: []int{}}
}

// Len returns the number of detections.
func (d Detections) Len() int {
	return len(d.Labels)
}

// Width returns the row width, 5 or 9.
func (d Detections) Width() int {
	return d.Boxes.Cols()
}

// Score returns the score of detection i, stored in the last column.
func (d Detections) Score(i int) float32 {
	return d.Boxes.At(i, d.Boxes.Cols()-1)
}

// Results unpacks the detections into Result values.
func (d Detections) Results() []Result {
	results := make([]Result, d.Len())
	for i := range results {
		row := d.Boxes.Row(i)
		coords := make([]float32, len(row)-1)
		copy(coords, row[:len(row)-1])
		results[i] = Result{Coords: coords, Score: row[len(row)-1], Class: d.Labels[i]}
	}
	return results
}

// Stats summarises one run for logging and metrics.
type Stats struct {
	// Kind is the path that ran.
	Kind Kind
	// Candidates is the number of input rows.
	Candidates int
	// Passed counts (candidate, class) pairs above the confidence threshold.
	Passed int
	// Detections is the number of rows returned.
	Detections int
}

// Suppressed is the number of passing pairs that did not make it into the
// output, either through suppression or through the max_num cap.
func (s Stats) Suppressed() int {
	return s.Passed - s.Detections
}
