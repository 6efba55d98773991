package field

import (
	"fmt"
	"io"
	"math"

	"github.com/gocarina/gocsv"
)

// CellRecord is one row of a field export. Indices and centers are native
// (x|r, y|phi, z); axes the field no longer spans have index -1 and a NaN
// center.
type CellRecord struct {
	Cell    int     `csv:"cell"`
	I       int     `csv:"i"`
	J       int     `csv:"j"`
	K       int     `csv:"k"`
	C0      float64 `csv:"c0"`
	C1      float64 `csv:"c1"`
	C2      float64 `csv:"c2"`
	Value   float64 `csv:"value"`
	Weight  float64 `csv:"weight"`
	Defined bool    `csv:"defined"`
}

// Records returns one CellRecord per cell in the layout of Dense.
func (f *Field) Records() []CellRecord {
	recs := make([]CellRecord, f.Len())
	coords := []int{}
	for id := range recs {
		coords = f.index.Coords(id, coords)
		nc := f.nativeCoords(coords)
		var centers [3]float64
		for ax, c := range nc {
			if c < 0 {
				centers[ax] = math.NaN()
			} else {
				centers[ax] = f.grid.Axis(ax).Center(c)
			}
		}
		recs[id] = CellRecord{
			Cell: id, I: nc[0], J: nc[1], K: nc[2],
			C0: centers[0], C1: centers[1], C2: centers[2],
			Value: f.values[id], Weight: f.weights[id], Defined: f.defined[id],
		}
	}
	return recs
}

// WriteCSV writes Records as CSV with a header line.
func (f *Field) WriteCSV(w io.Writer) error {
	recs := f.Records()
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("writing %s: %w", f.Tag.Name, err)
	}
	return nil
}

// VectorRecord is one row of a vector field export.
type VectorRecord struct {
	Cell    int     `csv:"cell"`
	I       int     `csv:"i"`
	J       int     `csv:"j"`
	K       int     `csv:"k"`
	C0      float64 `csv:"c0"`
	C1      float64 `csv:"c1"`
	C2      float64 `csv:"c2"`
	VX      float64 `csv:"vx"`
	VY      float64 `csv:"vy"`
	VZ      float64 `csv:"vz"`
	Weight  float64 `csv:"weight"`
	Defined bool    `csv:"defined"`
}

// Records returns one VectorRecord per cell in the layout of Field.Dense.
func (v *Vector) Records() []VectorRecord {
	base := v.Comp[0].Records()
	recs := make([]VectorRecord, len(base))
	for id, b := range base {
		recs[id] = VectorRecord{
			Cell: b.Cell, I: b.I, J: b.J, K: b.K,
			C0: b.C0, C1: b.C1, C2: b.C2,
			VX: b.Value, VY: v.Comp[1].values[id], VZ: v.Comp[2].values[id],
			Weight: b.Weight, Defined: b.Defined,
		}
	}
	return recs
}

// WriteCSV writes Records as CSV with a header line.
func (v *Vector) WriteCSV(w io.Writer) error {
	recs := v.Records()
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("writing %s: %w", v.Tag().Name, err)
	}
	return nil
}
