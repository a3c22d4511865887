package dataset

import (
	"errors"
	"fmt"
	"time"
)

// Column names every provider must supply. Feature columns come on top of
// these; the label column marks the training target.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"

	LabelColumn = "target"
)

// ErrUnavailable is returned when a provider has no rows for the requested
// range. Callers surface it and skip the cycle; there is no retry here.
var ErrUnavailable = errors.New("dataset: no rows available")

// FeatureMismatchError reports a column the model expects but the live table
// does not carry. It aborts the evaluation cycle it occurs in.
type FeatureMismatchError struct {
	Column string
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("dataset: feature column %q missing", e.Column)
}

// Frame is a time-indexed table of numeric columns. Rows are bar-aligned and
// sorted ascending by time; the frame is immutable once built.
type Frame struct {
	times   []time.Time
	columns map[string][]float64
	order   []string
}

func NewFrame(times []time.Time, columns map[string][]float64, order []string) (*Frame, error) {
	if len(times) == 0 {
		return nil, ErrUnavailable
	}
	for _, name := range order {
		col, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("dataset: column %q declared but absent", name)
		}
		if len(col) != len(times) {
			return nil, fmt.Errorf("dataset: column %q has %d rows, want %d", name, len(col), len(times))
		}
	}
	return &Frame{times: times, columns: columns, order: order}, nil
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.times)
}

func (f *Frame) Time(i int) time.Time { return f.times[i] }

func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the full series for one column. The returned slice is the
// backing array; callers must not mutate it.
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.columns[name]
	if !ok {
		return nil, &FeatureMismatchError{Column: name}
	}
	return col, nil
}

func (f *Frame) Value(name string, i int) (float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(col) {
		return 0, ErrUnavailable
	}
	return col[i], nil
}

// RowVector assembles row i in the order of names. A missing column yields a
// FeatureMismatchError naming the first absent column.
func (f *Frame) RowVector(i int, names []string) ([]float64, error) {
	if f == nil || i < 0 || i >= f.Len() {
		return nil, ErrUnavailable
	}
	out := make([]float64, len(names))
	for j, name := range names {
		col, ok := f.columns[name]
		if !ok {
			return nil, &FeatureMismatchError{Column: name}
		}
		out[j] = col[i]
	}
	return out, nil
}

// Matrix assembles rows [from, to) for the named columns.
func (f *Frame) Matrix(from, to int, names []string) ([][]float64, error) {
	if f == nil || from < 0 || to > f.Len() || from >= to {
		return nil, ErrUnavailable
	}
	out := make([][]float64, 0, to-from)
	for i := from; i < to; i++ {
		row, err := f.RowVector(i, names)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Labels returns the binary target for rows [from, to).
func (f *Frame) Labels(from, to int) ([]int, error) {
	col, err := f.Column(LabelColumn)
	if err != nil {
		return nil, err
	}
	if from < 0 || to > len(col) || from >= to {
		return nil, ErrUnavailable
	}
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		if col[i] > 0.5 {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out, nil
}

// FeatureColumns lists every column that is neither OHLCV nor the label.
func (f *Frame) FeatureColumns() []string {
	skip := map[string]struct{}{
		ColOpen: {}, ColHigh: {}, ColLow: {}, ColClose: {}, ColVolume: {},
		LabelColumn: {},
	}
	out := make([]string, 0, len(f.order))
	for _, name := range f.order {
		if _, ok := skip[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

// IndexOf locates the row whose time equals t, or -1. Rows are sorted
// ascending so a binary search suffices.
func (f *Frame) IndexOf(t time.Time) int {
	lo, hi := 0, f.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if f.times[mid].Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < f.Len() && f.times[lo].Equal(t) {
		return lo
	}
	return -1
}

// Tail returns a view of the last n rows (the whole frame when n exceeds it).
func (f *Frame) Tail(n int) *Frame {
	if f == nil || n <= 0 {
		return f
	}
	if n >= f.Len() {
		return f
	}
	start := f.Len() - n
	cols := make(map[string][]float64, len(f.columns))
	for name, col := range f.columns {
		cols[name] = col[start:]
	}
	return &Frame{times: f.times[start:], columns: cols, order: f.order}
}
