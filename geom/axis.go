package geom

import (
	"math"
	"sort"
)

// Axis is the discretization of one coordinate into cells. Cell i spans
// [Edges[i], Edges[i+1]), except that the upper extent itself belongs to the
// last cell.
type Axis struct {
	edges   []float64
	uniform bool
}

// UniformAxis splits [lo, hi] into n equally sized cells.
func UniformAxis(lo, hi float64, n int) Axis {
	edges := make([]float64, n+1)
	width := (hi - lo) / float64(n)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[n] = hi
	return Axis{edges: edges, uniform: true}
}

// SquareAxis splits [lo, hi] into n cells of equal lo^2 to hi^2 extent, so
// that rings of a cylinder built from it have equal volume.
func SquareAxis(lo, hi float64, n int) Axis {
	edges := make([]float64, n+1)
	lo2, hi2 := lo*lo, hi*hi
	for i := range edges {
		edges[i] = math.Sqrt(lo2 + float64(i)*(hi2-lo2)/float64(n))
	}
	edges[0], edges[n] = lo, hi
	return Axis{edges: edges}
}

// Cells returns the number of cells along the axis.
func (a Axis) Cells() int { return len(a.edges) - 1 }

func (a Axis) Min() float64 { return a.edges[0] }
func (a Axis) Max() float64 { return a.edges[len(a.edges)-1] }

// Edges returns a copy of the cell edges.
func (a Axis) Edges() []float64 { return append([]float64(nil), a.edges...) }

// Center returns the midpoint of cell i.
func (a Axis) Center(i int) float64 { return (a.edges[i] + a.edges[i+1]) / 2 }

// Width returns the extent of cell i.
func (a Axis) Width(i int) float64 { return a.edges[i+1] - a.edges[i] }

// Centers returns the midpoints of every cell.
func (a Axis) Centers() []float64 {
	out := make([]float64, a.Cells())
	for i := range out {
		out[i] = a.Center(i)
	}
	return out
}

// Index returns the cell containing the coordinate c and true, or false if c
// lies outside the axis.
func (a Axis) Index(c float64) (int, bool) {
	n := a.Cells()
	lo, hi := a.Min(), a.Max()
	if math.IsNaN(c) || c < lo || c > hi {
		return -1, false
	}
	if c == hi {
		return n - 1, true
	}

	if a.uniform {
		i := int((c - lo) / (hi - lo) * float64(n))
		// Rounding can push coordinates a hair away from an edge into the
		// neighbouring cell.
		if i >= n {
			i = n - 1
		} else if c < a.edges[i] {
			i--
		} else if c >= a.edges[i+1] {
			i++
		}
		return i, true
	}

	i := sort.SearchFloat64s(a.edges, c)
	if a.edges[i] != c {
		i--
	}
	return i, true
}

// Sub returns the axis restricted to the cells [lo, hi). The edges are
// rebuilt from the new extents, so the result equals the axis a descriptor
// of the same extents would give.
func (a Axis) Sub(lo, hi int) Axis {
	if a.uniform {
		return UniformAxis(a.edges[lo], a.edges[hi], hi-lo)
	}
	return SquareAxis(a.edges[lo], a.edges[hi], hi-lo)
}
