/*package metric derives transport and mixing indices from particle data and
from the fields the field package computes: descriptive statistics,
dispersion, circulation and residence times, histograms, the Lacey and
homogeneity mixing indices and mean squared displacements.

Every result carries the field.Tag of the window and selection it was computed
over.
*/
package metric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
)

// ErrInvalidBins is returned for histogram edges that are not a strictly
// increasing sequence of at least two finite values.
var ErrInvalidBins = errors.New("invalid bin edges")

func tag(name string, w dataset.Window, sel dataset.Selector) field.Tag {
	return field.Tag{Name: name, Window: w, Selector: sel}
}

// Summary describes the selected records of a window.
type Summary struct {
	Tag field.Tag
	// Frames is the number of frames in the window and Records the number of
	// selected records summed over them. Particles counts distinct ids.
	Frames, Records, Particles int

	Min, Max geom.Vec
	MeanPos  geom.Vec
	MeanVel  geom.Vec
	// Mean and sample standard deviation of the particle speed.
	SpeedMean, SpeedStd float64
}

// Stats summarizes the selected records of the window. It fails with
// dataset.ErrParticleNotFound if nothing is selected.
func Stats(ds dataset.Dataset, w dataset.Window, sel dataset.Selector) (Summary, error) {
	s := Summary{Tag: tag("stats", w, sel)}
	frames := w.Frames(ds)
	s.Frames = len(frames)

	ids := map[int64]struct{}{}
	xs := []geom.Vec{}
	speeds := []float64{}
	var vx, vy, vz, px, py, pz []float64
	for _, i := range frames {
		for _, r := range ds.Frame(i).Records {
			if !sel.Match(&r) {
				continue
			}
			ids[r.ID] = struct{}{}
			xs = append(xs, r.Pos)
			speeds = append(speeds, r.Vel.Norm())
			px, py, pz = append(px, r.Pos[0]), append(py, r.Pos[1]), append(pz, r.Pos[2])
			vx, vy, vz = append(vx, r.Vel[0]), append(vy, r.Vel[1]), append(vz, r.Vel[2])
		}
	}
	s.Records, s.Particles = len(xs), len(ids)
	if s.Records == 0 {
		return s, fmt.Errorf("%w: nothing selected by %s in %s",
			dataset.ErrParticleNotFound, sel, w)
	}

	s.Min, s.Max, _ = geom.MinMax(xs)
	s.MeanPos = geom.Vec{stat.Mean(px, nil), stat.Mean(py, nil), stat.Mean(pz, nil)}
	s.MeanVel = geom.Vec{stat.Mean(vx, nil), stat.Mean(vy, nil), stat.Mean(vz, nil)}
	if len(speeds) > 1 {
		s.SpeedMean, s.SpeedStd = stat.MeanStdDev(speeds, nil)
	} else {
		s.SpeedMean = speeds[0]
	}
	return s, nil
}

// NParticles returns the number of selected records in the window, summed
// over its frames. It is the total a number field over a grid enclosing every
// particle sums to.
func NParticles(ds dataset.Dataset, w dataset.Window, sel dataset.Selector) int {
	n := 0
	for _, i := range w.Frames(ds) {
		for j := range ds.Frame(i).Records {
			if sel.Match(&ds.Frame(i).Records[j]) {
				n++
			}
		}
	}
	return n
}

// MinPosition returns the componentwise minimum position of the selection.
func MinPosition(ds dataset.Dataset, w dataset.Window, sel dataset.Selector) (geom.Vec, error) {
	min, _, err := bounds(ds, w, sel)
	return min, err
}

// MaxPosition returns the componentwise maximum position of the selection.
func MaxPosition(ds dataset.Dataset, w dataset.Window, sel dataset.Selector) (geom.Vec, error) {
	_, max, err := bounds(ds, w, sel)
	return max, err
}

// Dimensions returns the extent of the bounding box of the selection.
func Dimensions(ds dataset.Dataset, w dataset.Window, sel dataset.Selector) (geom.Vec, error) {
	min, max, err := bounds(ds, w, sel)
	if err != nil {
		return geom.Vec{}, err
	}
	return max.Sub(min), nil
}

func bounds(ds dataset.Dataset, w dataset.Window, sel dataset.Selector) (min, max geom.Vec, err error) {
	min, max, ok := geom.MinMax(dataset.Positions(ds, w, sel))
	if !ok {
		return min, max, fmt.Errorf("%w: nothing selected by %s in %s",
			dataset.ErrParticleNotFound, sel, w)
	}
	return min, max, nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
