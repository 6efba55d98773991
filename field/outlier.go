package field

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// OutlierMethod is the statistic used to score how far a cell value lies
// from the rest of the field.
type OutlierMethod int

const (
	// ModifiedZScore scores values by 0.6745 (x - median) / MAD.
	ModifiedZScore OutlierMethod = iota
	// ZScore scores values by (x - mean) / stddev.
	ZScore
)

func (m OutlierMethod) String() string {
	if m == ZScore {
		return "zscore"
	}
	return "modified-zscore"
}

// ParseOutlierMethod converts a method name into an OutlierMethod.
func ParseOutlierMethod(s string) (OutlierMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "modified-zscore", "modified", "":
		return ModifiedZScore, nil
	case "zscore":
		return ZScore, nil
	}
	return 0, fmt.Errorf("unknown outlier method '%s'", s)
}

// OutlierMode decides what happens to a cell flagged as an outlier.
type OutlierMode int

const (
	// MarkUndefined removes outlying cells from the field.
	MarkUndefined OutlierMode = iota
	// Clamp moves outlying values onto the threshold.
	Clamp
)

func (m OutlierMode) String() string {
	if m == Clamp {
		return "clamp"
	}
	return "undefined"
}

// ParseOutlierMode converts a mode name into an OutlierMode.
func ParseOutlierMode(s string) (OutlierMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "undefined", "remove", "":
		return MarkUndefined, nil
	case "clamp":
		return Clamp, nil
	}
	return 0, fmt.Errorf("unknown outlier mode '%s'", s)
}

// OutlierRule flags cells whose score exceeds Threshold in absolute value.
type OutlierRule struct {
	Method    OutlierMethod
	Threshold float64
	Mode      OutlierMode
}

// DefaultOutlierRule is the modified z-score test of Iglewicz and Hoaglin
// with their recommended cutoff.
func DefaultOutlierRule() OutlierRule {
	return OutlierRule{Method: ModifiedZScore, Threshold: 3.5, Mode: MarkUndefined}
}

func (r OutlierRule) String() string {
	return fmt.Sprintf("%s > %g (%s)", r.Method, r.Threshold, r.Mode)
}

const (
	madScale     = 0.6745
	meanADFactor = 1.253314
)

// bounds returns the interval of values the rule accepts given the defined
// values of a field. ok is false if the values have no spread, in which case
// nothing is an outlier.
func (r OutlierRule) bounds(vals []float64) (lo, hi float64, ok bool) {
	switch r.Method {
	case ZScore:
		if len(vals) < 2 {
			return 0, 0, false
		}
		mean, std := stat.MeanStdDev(vals, nil)
		if !(std > 0) {
			return 0, 0, false
		}
		return mean - r.Threshold*std, mean + r.Threshold*std, true

	default:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		med := stat.Quantile(0.5, stat.Empirical, sorted, nil)

		dev := make([]float64, len(sorted))
		for i, x := range sorted {
			dev[i] = math.Abs(x - med)
		}
		meanAD := stat.Mean(dev, nil)
		sort.Float64s(dev)
		mad := stat.Quantile(0.5, stat.Empirical, dev, nil)

		// |0.6745 (x - med) / MAD| > t  <=>  |x - med| > t MAD / 0.6745
		var scale float64
		switch {
		case mad > 0:
			scale = mad / madScale
		case meanAD > 0:
			scale = meanADFactor * meanAD
		default:
			return 0, 0, false
		}
		return med - r.Threshold*scale, med + r.Threshold*scale, true
	}
}

// RemoveOutliers returns a copy of f in which every defined cell whose value
// the rule flags has been made undefined or clamped, and the number of such
// cells.
func (f *Field) RemoveOutliers(rule OutlierRule) (*Field, int, error) {
	if !(rule.Threshold > 0) {
		return nil, 0, fmt.Errorf("outlier threshold must be positive, got %g",
			rule.Threshold)
	}
	out := f.Clone()

	vals := make([]float64, 0, len(f.values))
	for id, ok := range f.defined {
		if ok && finite(f.values[id]) {
			vals = append(vals, f.values[id])
		}
	}
	if len(vals) == 0 {
		return out, 0, nil
	}

	lo, hi, ok := rule.bounds(vals)
	if !ok {
		return out, 0, nil
	}

	n := 0
	for id, def := range out.defined {
		if !def {
			continue
		}
		v := out.values[id]
		if v >= lo && v <= hi {
			continue
		}
		n++
		switch {
		case rule.Mode == Clamp && v < lo:
			out.values[id] = lo
		case rule.Mode == Clamp && v > hi:
			out.values[id] = hi
		default:
			// NaN values are never clamped.
			out.Unset(id)
		}
	}
	return out, n, nil
}

// Crop returns the field on the smallest sub-grid holding every defined
// cell. Collapsed axes are kept whole.
func (f *Field) Crop() (*Field, error) {
	var lo, hi [3]int
	for ax := 0; ax < 3; ax++ {
		lo[ax], hi[ax] = f.grid.Axis(ax).Cells(), 0
		if _, err := f.axisPosition(ax); err != nil {
			lo[ax] = 0
			hi[ax] = f.grid.Axis(ax).Cells()
		}
	}

	found := false
	coords := []int{}
	for id, ok := range f.defined {
		if !ok {
			continue
		}
		found = true
		coords = f.index.Coords(id, coords)
		for p, c := range coords {
			ax := f.axes[p]
			if c < lo[ax] {
				lo[ax] = c
			}
			if c+1 > hi[ax] {
				hi[ax] = c + 1
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s has no defined cells to crop to",
			ErrUndefinedAggregate, f.Tag.Name)
	}

	sub, err := f.grid.Sub(lo, hi)
	if err != nil {
		return nil, err
	}
	out := newField(sub, f.Tag, f.axes)
	out.Excluded, out.Frames = f.Excluded, f.Frames

	outCoords, inCoords := []int{}, make([]int, len(f.axes))
	for oid := range out.values {
		outCoords = out.index.Coords(oid, outCoords)
		for p, c := range outCoords {
			inCoords[p] = c + lo[f.axes[p]]
		}
		id := f.index.Flat(inCoords)
		out.values[oid] = f.values[id]
		out.weights[oid] = f.weights[id]
		out.defined[oid] = f.defined[id]
	}
	return out, nil
}

// Trim removes outliers and then crops the grid to the cells that remain.
func (f *Field) Trim(rule OutlierRule) (*Field, int, error) {
	out, n, err := f.RemoveOutliers(rule)
	if err != nil {
		return nil, 0, err
	}
	out, err = out.Crop()
	if err != nil {
		return nil, 0, err
	}
	return out, n, nil
}
