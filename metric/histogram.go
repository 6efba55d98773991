package metric

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
)

// Quantity is a scalar attribute of a particle record.
type Quantity func(r *dataset.Record) float64

var quantities = map[string]Quantity{
	"x":     func(r *dataset.Record) float64 { return r.Pos[0] },
	"y":     func(r *dataset.Record) float64 { return r.Pos[1] },
	"z":     func(r *dataset.Record) float64 { return r.Pos[2] },
	"vx":    func(r *dataset.Record) float64 { return r.Vel[0] },
	"vy":    func(r *dataset.Record) float64 { return r.Vel[1] },
	"vz":    func(r *dataset.Record) float64 { return r.Vel[2] },
	"speed": func(r *dataset.Record) float64 { return r.Vel.Norm() },
	"type":  func(r *dataset.Record) float64 { return float64(r.Type) },
}

// QuantityNames returns the names QuantityByName accepts.
func QuantityNames() []string {
	names := make([]string, 0, len(quantities))
	for name := range quantities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// QuantityByName returns one of the named record attributes: x, y, z, vx, vy,
// vz, speed or type.
func QuantityByName(name string) (Quantity, error) {
	q, ok := quantities[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown quantity '%s', expected one of %s",
			name, strings.Join(QuantityNames(), ", "))
	}
	return q, nil
}

// CheckEdges returns ErrInvalidBins unless edges is a strictly increasing
// sequence of at least two finite values.
func CheckEdges(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("%w: need at least two edges, got %d", ErrInvalidBins, len(edges))
	}
	for i, e := range edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: edge %d is %g", ErrInvalidBins, i, e)
		}
		if i > 0 && !(e > edges[i-1]) {
			return fmt.Errorf("%w: edges %g and %g are not increasing",
				ErrInvalidBins, edges[i-1], e)
		}
	}
	return nil
}

// Bin counts values into the bins [edges[i], edges[i+1]). The last edge
// itself belongs to the last bin. Values outside every bin, and NaNs, are
// dropped and counted.
func Bin(values, edges []float64) (counts []float64, dropped int, err error) {
	if err := CheckEdges(edges); err != nil {
		return nil, 0, err
	}
	lo, hi := edges[0], edges[len(edges)-1]

	in := make([]float64, 0, len(values))
	atHi := 0
	for _, x := range values {
		switch {
		case math.IsNaN(x) || x < lo || x > hi:
			dropped++
		case x == hi:
			atHi++
		default:
			in = append(in, x)
		}
	}
	sort.Float64s(in)

	counts = make([]float64, len(edges)-1)
	if len(in) > 0 {
		counts = stat.Histogram(counts, edges, in, nil)
	}
	counts[len(counts)-1] += float64(atHi)
	return counts, dropped, nil
}

// HistogramResult is a binned distribution of a particle attribute.
type HistogramResult struct {
	Tag      field.Tag
	Quantity string
	Edges    []float64
	Counts   []float64
	Dropped  int
}

// Histogram bins the named quantity of every selected record in the window.
func Histogram(
	ds dataset.Dataset, w dataset.Window, sel dataset.Selector,
	quantity string, edges []float64,
) (HistogramResult, error) {
	res := HistogramResult{
		Tag: tag("histogram", w, sel), Quantity: quantity,
		Edges: append([]float64(nil), edges...),
	}
	q, err := QuantityByName(quantity)
	if err != nil {
		return res, err
	}
	vals := []float64{}
	for _, i := range w.Frames(ds) {
		f := ds.Frame(i)
		for j := range f.Records {
			if sel.Match(&f.Records[j]) {
				vals = append(vals, q(&f.Records[j]))
			}
		}
	}
	res.Counts, res.Dropped, err = Bin(vals, edges)
	return res, err
}

type binRecord struct {
	Lo    float64 `csv:"lo"`
	Hi    float64 `csv:"hi"`
	Count float64 `csv:"count"`
}

// WriteCSV writes one (lo, hi, count) row per bin.
func (h HistogramResult) WriteCSV(w io.Writer) error {
	recs := make([]binRecord, len(h.Counts))
	for i := range recs {
		recs[i] = binRecord{h.Edges[i], h.Edges[i+1], h.Counts[i]}
	}
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("writing %s histogram: %w", h.Quantity, err)
	}
	return nil
}
