package field

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/granflow/geom"
)

// Slice returns the field restricted to index i along the native axis. The
// axis is removed from the result.
func (f *Field) Slice(axis, i int) (*Field, error) {
	p, err := f.axisPosition(axis)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= f.index.Len(p) {
		return nil, fmt.Errorf("%w: %s index %d of %d", geom.ErrIndexOutOfRange,
			f.grid.AxisName(axis), i, f.index.Len(p))
	}

	out := f.derived(without(f.axes, p))
	outCoords, coords := []int{}, make([]int, len(f.axes))
	for oid := 0; oid < out.Len(); oid++ {
		outCoords = out.index.Coords(oid, outCoords)
		copy(coords[:p], outCoords[:p])
		coords[p] = i
		copy(coords[p+1:], outCoords[p:])

		id := f.index.Flat(coords)
		out.values[oid] = f.values[id]
		out.weights[oid] = f.weights[id]
		out.defined[oid] = f.defined[id]
	}
	return out, nil
}

// SlicePos is Slice with the index given by a native coordinate along the
// axis.
func (f *Field) SlicePos(axis int, c float64) (*Field, error) {
	if _, err := f.axisPosition(axis); err != nil {
		return nil, err
	}
	i, err := f.grid.AxisIndex(axis, c)
	if err != nil {
		return nil, err
	}
	return f.Slice(axis, i)
}

// Collapse averages the field over one native axis. Each output cell is the
// weighted mean of the defined input cells with positive weight along the
// axis, and its weight is their total weight. Output cells with no such input
// are undefined.
func (f *Field) Collapse(axis int) (*Field, error) {
	return f.collapse(axis)
}

// CollapseTwo averages the field over two native axes at once.
func (f *Field) CollapseTwo(axis1, axis2 int) (*Field, error) {
	if axis1 == axis2 {
		return nil, fmt.Errorf("%w: cannot collapse axis %d twice",
			geom.ErrIndexOutOfRange, axis1)
	}
	return f.collapse(axis1, axis2)
}

// CollapseAll averages the field over every remaining axis.
func (f *Field) CollapseAll() (*Field, error) {
	return f.collapse(f.axes...)
}

func (f *Field) collapse(drop ...int) (*Field, error) {
	ps := make([]int, len(drop))
	for i, ax := range drop {
		p, err := f.axisPosition(ax)
		if err != nil {
			return nil, err
		}
		ps[i] = p
	}
	sort.Ints(ps)

	keep := f.axes
	for i := len(ps) - 1; i >= 0; i-- {
		keep = without(keep, ps[i])
	}
	out := f.derived(keep)

	// Terms of the numerator and denominator of each output cell.
	num := make([][]float64, out.Len())
	den := make([][]float64, out.Len())

	coords, outCoords := []int{}, make([]int, len(keep))
	for id := range f.values {
		if !f.defined[id] || !(f.weights[id] > 0) {
			continue
		}
		coords = f.index.Coords(id, coords)
		k := 0
		for p, c := range coords {
			if !containsInt(ps, p) {
				outCoords[k] = c
				k++
			}
		}
		oid := out.index.Flat(outCoords)
		num[oid] = append(num[oid], f.weights[id]*f.values[id])
		den[oid] = append(den[oid], f.weights[id])
	}

	for oid := range num {
		if len(den[oid]) == 0 {
			continue
		}
		w := floats.SumCompensated(den[oid])
		out.Set(oid, floats.SumCompensated(num[oid])/w, w)
	}
	return out, nil
}

// without returns a copy of xs with element i removed.
func without(xs []int, i int) []int {
	out := make([]int, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	return append(out, xs[i+1:]...)
}

func containsInt(xs []int, x int) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}
