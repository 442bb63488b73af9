package ann

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
)

// Weight is the dense matrix of one fully connected layer, mapping w inputs
// to h outputs. Storage is row-major with one row per output unit:
// the weight from input j to output i is at data[i*w+j].
type Weight struct {
	w, h int
	data []float32
}

// NewWeight creates a zero-filled matrix with w columns (inputs) and h rows (outputs).
func NewWeight(w, h int) *Weight {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("ann: invalid weight shape %dx%d", w, h))
	}
	return &Weight{w: w, h: h, data: make([]float32, w*h)}
}

// Size returns the input width and output height.
func (m *Weight) Size() (w, h int) {
	return m.w, m.h
}

// At returns the weight from input j to output i.
func (m *Weight) At(i, j int) float32 {
	return m.data[i*m.w+j]
}

// Set stores the weight from input j to output i.
func (m *Weight) Set(i, j int, v float32) {
	m.data[i*m.w+j] = v
}

// Zero sets every weight to 0.
func (m *Weight) Zero() {
	clear(m.data)
}

// Randn fills the matrix with Gaussian samples of the given deviation.
func (m *Weight) Randn(r Rand, deviation float32) {
	randn(m.data, r, deviation)
}

// Import copies h rows of w values each into the matrix.
func (m *Weight) Import(rows [][]float32) error {
	if err := checkSize("import", "row count", m.h, len(rows)); err != nil {
		return err
	}
	for i, row := range rows {
		if err := checkSize("import", fmt.Sprintf("row %d length", i), m.w, len(row)); err != nil {
			return err
		}
	}
	for i, row := range rows {
		copy(m.data[i*m.w:(i+1)*m.w], row)
	}
	return nil
}

// Export returns a copy of the matrix as h rows of w values.
func (m *Weight) Export() [][]float32 {
	rows := make([][]float32, m.h)
	for i := range rows {
		rows[i] = make([]float32, m.w)
		copy(rows[i], m.data[i*m.w:(i+1)*m.w])
	}
	return rows
}

// Accumulate computes m[i][j] += delta[i][j]*scale.
func (m *Weight) Accumulate(delta *Weight, scale float32) error {
	if m.w != delta.w {
		return &ShapeError{Op: "accumulate", What: "weight width", Want: m.w, Got: delta.w}
	}
	return accumulate(m.data, delta.data, scale)
}

// Dump renders the matrix with one bracketed row per line.
func (m *Weight) Dump() string {
	values := make([]float64, len(m.data))
	for i, v := range m.data {
		values[i] = float64(v)
	}
	d := mat.NewDense(m.h, m.w, values)
	return fmt.Sprintf("%.5g\n", mat.Formatted(d, mat.Squeeze()))
}

func (m *Weight) general() blas32.General {
	return blas32.General{Rows: m.h, Cols: m.w, Stride: m.w, Data: m.data}
}
