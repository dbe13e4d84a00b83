package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Matrix is a dense row-major float32 matrix. It may have zero rows while
// still carrying its column width.
type Matrix struct {
	rows, cols int
	data       []float32
}

// NewMatrix wraps data as a rows × cols matrix without copying.
func NewMatrix(rows, cols int, data []float32) (Matrix, error) {
	if rows < 0 || cols < 0 {
		return Matrix{}, errors.Wrapf(ErrShapeMismatch, "negative shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return Matrix{}, errors.Wrapf(ErrShapeMismatch, "%d values cannot fill a %dx%d matrix", len(data), rows, cols)
	}
	return Matrix{rows: rows, cols: cols, data: data}, nil
}

// EmptyMatrix returns a matrix with no rows and the given width.
func EmptyMatrix(cols int) Matrix {
	return Matrix{cols: cols, data: []float32{}}
}

// MatrixFromRows copies a slice of equally sized rows into a Matrix.
func MatrixFromRows(rows [][]float32) (Matrix, error) {
	if len(rows) == 0 {
		return EmptyMatrix(0), nil
	}
	cols := len(rows[0])
	data := make([]float32, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return Matrix{}, errors.Wrapf(ErrShapeMismatch, "row %d has %d values, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return Matrix{rows: len(rows), cols: cols, data: data}, nil
}

// MatrixFromDense converts a 2-D float32 or float64 tensor. Views are
// materialized first so the backing data is contiguous.
func MatrixFromDense(t *tensor.Dense) (Matrix, error) {
	if t == nil {
		return Matrix{}, errors.Wrap(ErrShapeMismatch, "nil tensor")
	}
	if t.Dims() != 2 {
		return Matrix{}, errors.Wrapf(ErrShapeMismatch, "expected a 2-D tensor, got shape %v", t.Shape())
	}
	if t.IsMaterializable() {
		m, ok := t.Materialize().(*tensor.Dense)
		if !ok {
			return Matrix{}, errors.New("materialized tensor is not dense")
		}
		t = m
	}

	shape := t.Shape()
	rows, cols := shape[0], shape[1]

	switch data := t.Data().(type) {
	case []float32:
		out := make([]float32, len(data))
		copy(out, data)
		return NewMatrix(rows, cols, out)
	case []float64:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return NewMatrix(rows, cols, out)
	default:
		return Matrix{}, errors.Errorf("unsupported tensor dtype %v", t.Dtype())
	}
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m Matrix) Cols() int { return m.cols }

// At returns the value at row i, column j.
func (m Matrix) At(i, j int) float32 { return m.data[i*m.cols+j] }

// Row returns row i. The slice aliases the matrix storage.
func (m Matrix) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Data returns the row-major backing slice.
func (m Matrix) Data() []float32 { return m.data }

// ToRows copies the matrix into a slice of rows.
func (m Matrix) ToRows() [][]float32 {
	out := make([][]float32, m.rows)
	for i := range out {
		row := make([]float32, m.cols)
		copy(row, m.Row(i))
		out[i] = row
	}
	return out
}

// Dense copies the matrix into a tensor. Matrices without rows yield nil,
// since a tensor cannot carry a zero-sized dimension.
func (m Matrix) Dense() *tensor.Dense {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	backing := make([]float32, len(m.data))
	copy(backing, m.data)
	return tensor.New(tensor.WithShape(m.rows, m.cols), tensor.WithBacking(backing))
}

// scaleRows returns a copy with every value of row i multiplied by factors[i].
func (m Matrix) scaleRows(factors []float32) Matrix {
	out := Matrix{rows: m.rows, cols: m.cols, data: make([]float32, len(m.data))}
	for i := 0; i < m.rows; i++ {
		f := factors[i]
		for j := 0; j < m.cols; j++ {
			out.data[i*m.cols+j] = m.data[i*m.cols+j] * f
		}
	}
	return out
}
