/*package field holds per-cell aggregates of particle quantities and the
engine that computes them.

A Field is attached to the grid it was binned on. It starts out three
dimensional, one value per grid cell, and can be sliced or collapsed into lower
dimensional fields over the remaining axes. Every cell carries a weight and a
defined flag: cells nothing contributed to are absent rather than zero, and
absent cells are skipped by every reduction.
*/
package field

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/geom"
)

// ErrUndefinedAggregate is returned when a cell without a value is read as
// if it had one.
var ErrUndefinedAggregate = errors.New("undefined aggregate")

// Tag records what a field was computed from.
type Tag struct {
	Name     string
	Window   dataset.Window
	Selector dataset.Selector
}

func (t Tag) String() string {
	return fmt.Sprintf("%s (%s, %s)", t.Name, t.Window, t.Selector)
}

// Field is a scalar per-cell aggregate over some of the native axes of a
// grid. Cells are stored in row-major order over the kept axes.
type Field struct {
	Tag Tag
	// Excluded is the amount of selected material that fell outside the
	// grid, in the same units as the values of a number field.
	Excluded float64
	// Frames is the number of frames aggregated.
	Frames int

	grid    *geom.Grid
	axes    []int
	index   *geom.Index
	values  []float64
	weights []float64
	defined []bool
}

// New returns a field over every cell of g with no cell defined.
func New(g *geom.Grid, tag Tag) *Field {
	return newField(g, tag, []int{0, 1, 2})
}

func newField(g *geom.Grid, tag Tag, axes []int) *Field {
	shape := make([]int, len(axes))
	for i, ax := range axes {
		shape[i] = g.Axis(ax).Cells()
	}
	idx := geom.NewIndex(shape...)
	return &Field{
		Tag:     tag,
		grid:    g,
		axes:    append([]int(nil), axes...),
		index:   idx,
		values:  make([]float64, idx.Volume),
		weights: make([]float64, idx.Volume),
		defined: make([]bool, idx.Volume),
	}
}

// derived returns an empty field over a subset of f's axes with f's labels.
func (f *Field) derived(axes []int) *Field {
	out := newField(f.grid, f.Tag, axes)
	out.Excluded, out.Frames = f.Excluded, f.Frames
	return out
}

func (f *Field) Grid() *geom.Grid { return f.grid }
func (f *Field) Dims() int        { return len(f.axes) }
func (f *Field) Len() int         { return f.index.Volume }
func (f *Field) Shape() []int     { return f.index.Shape() }

// Axes returns the native grid axes the field still spans.
func (f *Field) Axes() []int { return append([]int(nil), f.axes...) }

// Cell returns the value of the cell with flat id and whether it is defined.
func (f *Field) Cell(id int) (float64, bool) { return f.values[id], f.defined[id] }

func (f *Field) Weight(id int) float64 { return f.weights[id] }
func (f *Field) Defined(id int) bool   { return f.defined[id] }

// Set defines the cell id with value v and weight w.
func (f *Field) Set(id int, v, w float64) {
	f.values[id], f.weights[id], f.defined[id] = v, w, true
}

// Unset marks the cell id as undefined. Its weight is kept.
func (f *Field) Unset(id int) {
	f.values[id], f.defined[id] = 0, false
}

// At returns the value at the given per-axis indices and whether it is
// defined. It panics if the indices are outside the field.
func (f *Field) At(coords ...int) (float64, bool) {
	id, ok := f.index.FlatCheck(coords)
	if !ok {
		panic(fmt.Sprintf("field: indices %v outside field of shape %v",
			coords, f.index.Shape()))
	}
	return f.Cell(id)
}

// Value is At for callers that want an error instead of a flag.
func (f *Field) Value(coords ...int) (float64, error) {
	id, ok := f.index.FlatCheck(coords)
	if !ok {
		return 0, fmt.Errorf("%w: indices %v outside field of shape %v",
			geom.ErrIndexOutOfRange, coords, f.index.Shape())
	}
	if !f.defined[id] {
		return 0, fmt.Errorf("%w: %s at %v", ErrUndefinedAggregate, f.Tag.Name, coords)
	}
	return f.values[id], nil
}

// AtPos returns the value of the cell containing the Cartesian position x. Only
// fields spanning all three axes can be looked up by position.
func (f *Field) AtPos(x geom.Vec) (float64, error) {
	if len(f.axes) != 3 {
		return 0, fmt.Errorf("%w: positional lookup in a %d-dimensional field",
			geom.ErrIndexOutOfRange, len(f.axes))
	}
	id, ok := f.grid.CellID(x)
	if !ok {
		return 0, fmt.Errorf("%w: %v is outside %s", geom.ErrIndexOutOfRange, x, f.grid)
	}
	if !f.defined[id] {
		return 0, fmt.Errorf("%w: %s at %v", ErrUndefinedAggregate, f.Tag.Name, x)
	}
	return f.values[id], nil
}

// Scalar returns the value of a fully collapsed field.
func (f *Field) Scalar() (float64, error) {
	if len(f.axes) != 0 {
		return 0, fmt.Errorf("%w: field still spans %d axes",
			geom.ErrIndexOutOfRange, len(f.axes))
	}
	return f.Value()
}

// DefinedCells returns the number of defined cells.
func (f *Field) DefinedCells() int {
	n := 0
	for _, ok := range f.defined {
		if ok {
			n++
		}
	}
	return n
}

// Sum returns the compensated sum of every defined value.
func (f *Field) Sum() float64 {
	vals := make([]float64, 0, len(f.values))
	for id, ok := range f.defined {
		if ok {
			vals = append(vals, f.values[id])
		}
	}
	return floats.SumCompensated(vals)
}

// Clone returns a deep copy of f.
func (f *Field) Clone() *Field {
	out := f.derived(f.axes)
	copy(out.values, f.values)
	copy(out.weights, f.weights)
	copy(out.defined, f.defined)
	return out
}

// Dense returns the values in row-major order over the kept axes, with
// undefined cells set to fill.
func (f *Field) Dense(fill float64) []float64 {
	out := make([]float64, len(f.values))
	for id := range out {
		if f.defined[id] {
			out[id] = f.values[id]
		} else {
			out[id] = fill
		}
	}
	return out
}

// DenseWeights returns a copy of the weights in the layout of Dense.
func (f *Field) DenseWeights() []float64 {
	return append([]float64(nil), f.weights...)
}

// Mask returns a copy of the defined flags in the layout of Dense.
func (f *Field) Mask() []bool {
	return append([]bool(nil), f.defined...)
}

// Coords returns the per-axis indices of a flat id over the kept axes.
func (f *Field) Coords(id int) []int {
	return f.index.Coords(id, nil)
}

// Center returns the native coordinates of a cell along the kept axes.
func (f *Field) Center(id int) []float64 {
	coords := f.index.Coords(id, nil)
	out := make([]float64, len(coords))
	for i, c := range coords {
		out[i] = f.grid.Axis(f.axes[i]).Center(c)
	}
	return out
}

// Centers returns Center for every cell in the layout of Dense.
func (f *Field) Centers() [][]float64 {
	out := make([][]float64, f.Len())
	for id := range out {
		out[id] = f.Center(id)
	}
	return out
}

// nativeCoords expands per-axis indices over the kept axes into indices over
// all three grid axes, with dropped axes set to -1.
func (f *Field) nativeCoords(coords []int) [3]int {
	out := [3]int{-1, -1, -1}
	for i, ax := range f.axes {
		out[ax] = coords[i]
	}
	return out
}

// axisPosition returns the position of the native axis ax among the kept axes.
func (f *Field) axisPosition(ax int) (int, error) {
	for i, a := range f.axes {
		if a == ax {
			return i, nil
		}
	}
	if ax < 0 || ax > 2 {
		return -1, fmt.Errorf("%w: axis %d of a 3D grid", geom.ErrIndexOutOfRange, ax)
	}
	return -1, fmt.Errorf("%w: axis %s has already been removed from %s",
		geom.ErrIndexOutOfRange, f.grid.AxisName(ax), f.Tag.Name)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
