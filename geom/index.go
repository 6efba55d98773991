package geom

import (
	"fmt"
)

// Index provides an interface for reasoning over a 1D slice as if it were an
// N-dimensional grid. Flat ids are row-major: the last axis varies fastest.
type Index struct {
	shape   []int
	strides []int
	Volume  int
}

// NewIndex returns a new Index over the given per-axis cell counts. A
// zero-dimensional Index has a single cell.
func NewIndex(shape ...int) *Index {
	idx := &Index{}
	idx.Init(shape)
	return idx
}

// Init initializes an Index instance. It panics if any count is less than one.
func (idx *Index) Init(shape []int) {
	idx.shape = append([]int(nil), shape...)
	idx.strides = make([]int, len(shape))

	idx.Volume = 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] < 1 {
			panic(fmt.Sprintf("geom: axis %d of index has %d cells", i, shape[i]))
		}
		idx.strides[i] = idx.Volume
		idx.Volume *= shape[i]
	}
}

// Dims returns the number of axes.
func (idx *Index) Dims() int { return len(idx.shape) }

// Shape returns a copy of the per-axis cell counts.
func (idx *Index) Shape() []int { return append([]int(nil), idx.shape...) }

// Len returns the cell count along axis i.
func (idx *Index) Len(i int) int { return idx.shape[i] }

// Flat returns the flat id corresponding to a set of per-axis indices. The
// indices are not checked.
func (idx *Index) Flat(coords []int) int {
	id := 0
	for i, c := range coords {
		id += c * idx.strides[i]
	}
	return id
}

// FlatCheck returns a flat id and true if the given indices are valid and
// false otherwise.
func (idx *Index) FlatCheck(coords []int) (id int, ok bool) {
	if !idx.BoundsCheck(coords) {
		return -1, false
	}
	return idx.Flat(coords), true
}

// BoundsCheck returns true if the given indices are within the Index and
// false otherwise.
func (idx *Index) BoundsCheck(coords []int) bool {
	if len(coords) != len(idx.shape) {
		return false
	}
	for i, c := range coords {
		if c < 0 || c >= idx.shape[i] {
			return false
		}
	}
	return true
}

// Coords writes the per-axis indices of a flat id into out and returns it.
// out is allocated if it is too short.
func (idx *Index) Coords(id int, out []int) []int {
	if len(out) < len(idx.shape) {
		out = make([]int, len(idx.shape))
	}
	out = out[:len(idx.shape)]
	for i := range idx.shape {
		out[i] = id / idx.strides[i]
		id -= out[i] * idx.strides[i]
	}
	return out
}

// Equal returns true if both indices have the same shape.
func (idx *Index) Equal(other *Index) bool {
	if len(idx.shape) != len(other.shape) {
		return false
	}
	for i := range idx.shape {
		if idx.shape[i] != other.shape[i] {
			return false
		}
	}
	return true
}
