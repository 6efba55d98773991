package dataset

import (
	"fmt"
	"math"
	"sort"

	"github.com/phil-mansfield/granflow/geom"
)

// Sample is one point of a trajectory.
type Sample struct {
	Time float64
	Pos  geom.Vec
	Vel  geom.Vec
}

// Trajectory is the time-ordered sequence of samples of a single particle.
type Trajectory struct {
	ID      int64
	Type    int
	Samples []Sample
}

// At returns the sample within tol of t.
func (tr *Trajectory) At(t, tol float64) (Sample, error) {
	i := sort.Search(len(tr.Samples), func(i int) bool {
		return tr.Samples[i].Time >= t-tol
	})
	if i < len(tr.Samples) && math.Abs(tr.Samples[i].Time-t) <= tol {
		return tr.Samples[i], nil
	}
	return Sample{}, fmt.Errorf("%w: id %d has no sample at t = %g",
		ErrParticleNotFound, tr.ID, t)
}

// Duration returns the time between the first and last samples.
func (tr *Trajectory) Duration() float64 {
	if len(tr.Samples) == 0 {
		return 0
	}
	return tr.Samples[len(tr.Samples)-1].Time - tr.Samples[0].Time
}

// Trajectories folds the frames of the window into one trajectory per
// selected particle id. The result is built fresh on every call.
func Trajectories(ds Dataset, w Window, sel Selector) map[int64]*Trajectory {
	trs := map[int64]*Trajectory{}
	for _, i := range w.Frames(ds) {
		f := ds.Frame(i)
		for j := range f.Records {
			r := &f.Records[j]
			if !sel.Match(r) {
				continue
			}
			tr, ok := trs[r.ID]
			if !ok {
				tr = &Trajectory{ID: r.ID, Type: r.Type}
				trs[r.ID] = tr
			}
			tr.Samples = append(tr.Samples, Sample{f.Time, r.Pos, r.Vel})
		}
	}
	return trs
}

// Extract returns the trajectory of a single particle over the window.
func Extract(ds Dataset, w Window, id int64) (*Trajectory, error) {
	tr := &Trajectory{ID: id}
	for _, i := range w.Frames(ds) {
		f := ds.Frame(i)
		if r, ok := Find(f, id); ok {
			tr.Type = r.Type
			tr.Samples = append(tr.Samples, Sample{f.Time, r.Pos, r.Vel})
		}
	}
	if len(tr.Samples) == 0 {
		return nil, fmt.Errorf("%w: id %d in %s", ErrParticleNotFound, id, w)
	}
	return tr, nil
}

// SortedIDs returns the keys of trs in increasing order.
func SortedIDs(trs map[int64]*Trajectory) []int64 {
	ids := make([]int64, 0, len(trs))
	for id := range trs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
