package metric

import (
	"fmt"
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
)

// DispersionResult is the outcome of a boundary crossing count.
type DispersionResult struct {
	Tag      field.Tag
	Axis     int
	Boundary float64
	N        int
	// Particles is the number of selected particles and Crossed the number
	// that crossed at least N times.
	Particles, Crossed int
	Probability        float64
	Crossings          map[int64]int
}

// Dispersion returns the fraction of selected particles whose trajectory
// crosses the plane x[axis] = boundary at least n times within the window.
// A sample lying exactly on the plane keeps the side of the sample before it.
func Dispersion(
	ds dataset.Dataset, w dataset.Window, sel dataset.Selector,
	axis int, boundary float64, n int,
) (DispersionResult, error) {
	res := DispersionResult{
		Tag: tag("dispersion", w, sel), Axis: axis, Boundary: boundary, N: n,
		Crossings: map[int64]int{},
	}
	if axis < 0 || axis > 2 {
		return res, fmt.Errorf("%w: axis %d of a 3D position",
			geom.ErrIndexOutOfRange, axis)
	}

	for id, tr := range dataset.Trajectories(ds, w, sel) {
		c := crossings(tr, axis, boundary)
		res.Crossings[id] = c
		if c >= n {
			res.Crossed++
		}
	}
	res.Particles = len(res.Crossings)
	if res.Particles == 0 {
		return res, fmt.Errorf("%w: no particles selected by %s in %s",
			field.ErrUndefinedAggregate, sel, w)
	}
	res.Probability = float64(res.Crossed) / float64(res.Particles)
	return res, nil
}

func crossings(tr *dataset.Trajectory, axis int, boundary float64) int {
	n, side := 0, 0
	for _, s := range tr.Samples {
		d := s.Pos[axis] - boundary
		next := side
		switch {
		case d > 0:
			next = 1
		case d < 0:
			next = -1
		}
		if side != 0 && next != side {
			n++
		}
		side = next
	}
	return n
}

// Region is a volume particles can enter and leave.
type Region interface {
	Contains(x geom.Vec) bool
}

// Box is the axis-aligned region Min <= x <= Max.
type Box struct {
	Min, Max geom.Vec
}

func (b Box) Contains(x geom.Vec) bool {
	for i := range x {
		if x[i] < b.Min[i] || x[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Slab is the region Lo <= x[Axis] <= Hi.
type Slab struct {
	Axis   int
	Lo, Hi float64
}

func (s Slab) Contains(x geom.Vec) bool { return x[s.Axis] >= s.Lo && x[s.Axis] <= s.Hi }

// Event is the kind of region boundary crossing that starts and ends a
// circulation.
type Event int

const (
	Exit Event = iota
	Entry
)

func (e Event) String() string {
	if e == Entry {
		return "entry"
	}
	return "exit"
}

// Durations are per-particle time spans in a window.
type Durations struct {
	// Times holds every span, grouped by particle id in increasing order and
	// in time order within a particle.
	Times       []float64
	PerParticle map[int64][]float64
}

func (d *Durations) add(id int64, times []float64) {
	if len(times) == 0 {
		return
	}
	d.PerParticle[id] = times
	d.Times = append(d.Times, times...)
}

// Stats returns the mean and sample standard deviation of the times. The
// deviation is zero for a single time.
func (d Durations) Stats() (mean, std float64, err error) {
	switch len(d.Times) {
	case 0:
		return 0, 0, fmt.Errorf("%w: no particle completed a span",
			field.ErrUndefinedAggregate)
	case 1:
		return d.Times[0], 0, nil
	}
	mean, std = stat.MeanStdDev(d.Times, nil)
	return mean, std, nil
}

// Distribution bins the times into edges. See Bin.
func (d Durations) Distribution(edges []float64) (counts []float64, dropped int, err error) {
	return Bin(d.Times, edges)
}

// CirculationResult is the distribution of times between successive events.
type CirculationResult struct {
	Tag   field.Tag
	Event Event
	Durations
}

// CirculationTime walks each selected trajectory and records the time
// between successive events of the given kind. An event happens at the first
// sample on the new side of the region boundary.
func CirculationTime(
	ds dataset.Dataset, w dataset.Window, sel dataset.Selector,
	region Region, event Event,
) CirculationResult {
	res := CirculationResult{
		Tag: tag("circulation time", w, sel), Event: event,
		Durations: Durations{PerParticle: map[int64][]float64{}},
	}
	trs := dataset.Trajectories(ds, w, sel)
	for _, id := range dataset.SortedIDs(trs) {
		res.add(id, circulations(trs[id], region, event))
	}
	return res
}

func circulations(tr *dataset.Trajectory, region Region, event Event) []float64 {
	var times []float64
	last, seen, wasIn := 0.0, false, false
	for i, s := range tr.Samples {
		in := region.Contains(s.Pos)
		if i > 0 && in != wasIn && in == (event == Entry) {
			if seen {
				times = append(times, s.Time-last)
			}
			last, seen = s.Time, true
		}
		wasIn = in
	}
	return times
}

// ResidenceResult is the distribution of times particles spend inside a
// region per visit.
type ResidenceResult struct {
	Tag field.Tag
	Durations
}

// ResidenceTimes walks each selected trajectory and records how long every
// visit to region lasted, from the first sample inside to the first sample
// outside. Visits already under way at the start of the window or still
// under way at its end are not counted.
func ResidenceTimes(
	ds dataset.Dataset, w dataset.Window, sel dataset.Selector, region Region,
) ResidenceResult {
	res := ResidenceResult{
		Tag:       tag("residence time", w, sel),
		Durations: Durations{PerParticle: map[int64][]float64{}},
	}
	trs := dataset.Trajectories(ds, w, sel)
	for _, id := range dataset.SortedIDs(trs) {
		res.add(id, visits(trs[id], region))
	}
	return res
}

func visits(tr *dataset.Trajectory, region Region) []float64 {
	var times []float64
	entered, open, inside := 0.0, false, false
	for i, s := range tr.Samples {
		in := region.Contains(s.Pos)
		switch {
		case i > 0 && in && !inside:
			entered, open = s.Time, true
		case !in && open:
			times = append(times, s.Time-entered)
			open = false
		}
		inside = in
	}
	return times
}

type durationRecord struct {
	ID   int64   `csv:"id"`
	Time float64 `csv:"time"`
}

// WriteCSV writes one (id, time) row per span.
func (d Durations) WriteCSV(w io.Writer) error {
	ids := make([]int64, 0, len(d.PerParticle))
	for id := range d.PerParticle {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	recs := []durationRecord{}
	for _, id := range ids {
		for _, t := range d.PerParticle[id] {
			recs = append(recs, durationRecord{id, t})
		}
	}
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("writing durations: %w", err)
	}
	return nil
}
