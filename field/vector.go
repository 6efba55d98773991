package field

import (
	"math"

	"github.com/phil-mansfield/granflow/geom"
)

// Vector is a per-cell 3-vector aggregate, stored as three scalar fields that
// share weights and defined cells. Components are Cartesian (vx, vy, vz)
// regardless of the grid geometry.
type Vector struct {
	Comp [3]*Field
}

func newVector(g *geom.Grid, tag Tag) *Vector {
	v := &Vector{}
	for k := range v.Comp {
		v.Comp[k] = New(g, tag)
	}
	return v
}

func (v *Vector) Grid() *geom.Grid { return v.Comp[0].grid }
func (v *Vector) Tag() Tag         { return v.Comp[0].Tag }
func (v *Vector) Len() int         { return v.Comp[0].Len() }
func (v *Vector) Shape() []int     { return v.Comp[0].Shape() }

// Set defines the cell id with value x and weight w.
func (v *Vector) Set(id int, x geom.Vec, w float64) {
	for k := range v.Comp {
		v.Comp[k].Set(id, x[k], w)
	}
}

// Cell returns the vector in cell id and whether it is defined.
func (v *Vector) Cell(id int) (geom.Vec, bool) {
	var x geom.Vec
	for k := range x {
		x[k] = v.Comp[k].values[id]
	}
	return x, v.Comp[0].defined[id]
}

// At returns the vector at the given per-axis indices and whether it is
// defined.
func (v *Vector) At(coords ...int) (geom.Vec, bool) {
	var x geom.Vec
	ok := false
	for k := range x {
		x[k], ok = v.Comp[k].At(coords...)
	}
	return x, ok
}

// Magnitude returns the per-cell length of the vector.
func (v *Vector) Magnitude() *Field {
	c := v.Comp[0]
	out := c.derived(c.axes)
	out.Tag.Name = c.Tag.Name + " magnitude"
	for id := range out.values {
		if !c.defined[id] {
			out.weights[id] = c.weights[id]
			continue
		}
		x, _ := v.Cell(id)
		out.Set(id, x.Norm(), c.weights[id])
	}
	return out
}

// Slice is Field.Slice applied to every component.
func (v *Vector) Slice(axis, i int) (*Vector, error) {
	return v.apply(func(f *Field) (*Field, error) { return f.Slice(axis, i) })
}

// SlicePos is Field.SlicePos applied to every component.
func (v *Vector) SlicePos(axis int, c float64) (*Vector, error) {
	return v.apply(func(f *Field) (*Field, error) { return f.SlicePos(axis, c) })
}

// Collapse is Field.Collapse applied to every component.
func (v *Vector) Collapse(axis int) (*Vector, error) {
	return v.apply(func(f *Field) (*Field, error) { return f.Collapse(axis) })
}

// CollapseTwo is Field.CollapseTwo applied to every component.
func (v *Vector) CollapseTwo(axis1, axis2 int) (*Vector, error) {
	return v.apply(func(f *Field) (*Field, error) { return f.CollapseTwo(axis1, axis2) })
}

// Crop is Field.Crop applied to every component.
func (v *Vector) Crop() (*Vector, error) {
	return v.apply((*Field).Crop)
}

// RemoveOutliers applies rule to the magnitudes of v. A flagged cell is made
// undefined in every component, or under Clamp rescaled so that its length
// lies on the nearest bound. It returns the number of flagged cells.
func (v *Vector) RemoveOutliers(rule OutlierRule) (*Vector, int, error) {
	mag := v.Magnitude()
	flagged, n, err := mag.RemoveOutliers(rule)
	if err != nil {
		return nil, 0, err
	}
	out, _ := v.apply(func(f *Field) (*Field, error) { return f.Clone(), nil })
	if n == 0 {
		return out, 0, nil
	}

	for id, def := range mag.defined {
		if !def {
			continue
		}
		after, ok := flagged.Cell(id)
		before := mag.values[id]
		switch {
		case !ok:
			for k := range out.Comp {
				out.Comp[k].Unset(id)
			}
		case after != before && before > 0:
			for k := range out.Comp {
				out.Comp[k].values[id] *= math.Max(after, 0) / before
			}
		}
	}
	return out, n, nil
}

// Trim removes outliers and then crops the grid to the cells that remain.
func (v *Vector) Trim(rule OutlierRule) (*Vector, int, error) {
	out, n, err := v.RemoveOutliers(rule)
	if err != nil {
		return nil, 0, err
	}
	out, err = out.Crop()
	if err != nil {
		return nil, 0, err
	}
	return out, n, nil
}

func (v *Vector) apply(op func(*Field) (*Field, error)) (*Vector, error) {
	out := &Vector{}
	for k := range v.Comp {
		f, err := op(v.Comp[k])
		if err != nil {
			return nil, err
		}
		out.Comp[k] = f
	}
	return out, nil
}

// Dense returns the components in the layout of Field.Dense, undefined cells
// set to NaN.
func (v *Vector) Dense() [3][]float64 {
	var out [3][]float64
	for k := range out {
		out[k] = v.Comp[k].Dense(math.NaN())
	}
	return out
}
