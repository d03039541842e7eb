package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sequence is an ordered run of fixed-width vectors stored row-major.
// Row i is timepoint i; rows are never reordered.
type Sequence struct {
	Rows int
	Cols int
	Data []float64
}

// NewSequence allocates a zeroed rows×cols sequence.
func NewSequence(rows, cols int) *Sequence {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return &Sequence{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// SequenceFromRows copies a slice of equal-length rows into a Sequence.
func SequenceFromRows(rows [][]float64) (*Sequence, error) {
	if len(rows) == 0 {
		return NewSequence(0, 0), nil
	}
	cols := len(rows[0])
	s := NewSequence(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, &ShapeError{Op: "sequence from rows", Want: cols, Got: len(r),
				Detail: fmt.Sprintf("row %d", i)}
		}
		copy(s.Row(i), r)
	}
	return s, nil
}

// Len returns the number of timepoints.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return s.Rows
}

// Dim returns the feature dimension.
func (s *Sequence) Dim() int {
	if s == nil {
		return 0
	}
	return s.Cols
}

// Row returns a view of row i. Writes go through to the sequence.
func (s *Sequence) Row(i int) []float64 {
	return s.Data[i*s.Cols : (i+1)*s.Cols]
}

// At returns element (i, j).
func (s *Sequence) At(i, j int) float64 {
	return s.Data[i*s.Cols+j]
}

// Clone returns a deep copy. Stages hand sequences to each other by value.
func (s *Sequence) Clone() *Sequence {
	if s == nil {
		return nil
	}
	out := &Sequence{Rows: s.Rows, Cols: s.Cols, Data: make([]float64, len(s.Data))}
	copy(out.Data, s.Data)
	return out
}

// Head returns a copy of the first n rows (all rows if n >= Len).
func (s *Sequence) Head(n int) *Sequence {
	if n > s.Rows {
		n = s.Rows
	}
	if n < 0 {
		n = 0
	}
	out := NewSequence(n, s.Cols)
	copy(out.Data, s.Data[:n*s.Cols])
	return out
}

// Columns returns a copy restricted to the first n columns.
func (s *Sequence) Columns(n int) *Sequence {
	if n > s.Cols {
		n = s.Cols
	}
	out := NewSequence(s.Rows, n)
	for i := 0; i < s.Rows; i++ {
		copy(out.Row(i), s.Row(i)[:n])
	}
	return out
}

// FitColumns truncates or zero-pads to exactly n columns.
func (s *Sequence) FitColumns(n int) *Sequence {
	out := NewSequence(s.Rows, n)
	k := min(n, s.Cols)
	for i := 0; i < s.Rows; i++ {
		copy(out.Row(i)[:k], s.Row(i)[:k])
	}
	return out
}

// Dense wraps a copy of the data as a gonum matrix.
// A zero-row sequence yields nil because gonum rejects empty matrices.
func (s *Sequence) Dense() *mat.Dense {
	if s.Rows == 0 || s.Cols == 0 {
		return nil
	}
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	return mat.NewDense(s.Rows, s.Cols, data)
}

// FromDense copies a gonum matrix into a new Sequence.
func FromDense(m mat.Matrix) *Sequence {
	r, c := m.Dims()
	out := NewSequence(r, c)
	for i := 0; i < r; i++ {
		row := out.Row(i)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
	}
	return out
}

// String implements fmt.Stringer with the shape only.
func (s *Sequence) String() string {
	return fmt.Sprintf("Sequence(%d×%d)", s.Len(), s.Dim())
}
