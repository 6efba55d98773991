/*package dataset is the boundary between the analysis engines and whatever
reads particle data off disk. A Dataset is an ordered sequence of frames, each
a set of particle records at one timestamp. The engines only ever read from it.
*/
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/phil-mansfield/granflow/geom"
)

var (
	// ErrNoTimeWindowSelected is returned by queries that read the cursor
	// before any time or window has been selected.
	ErrNoTimeWindowSelected = errors.New("no time window selected")
	// ErrParticleNotFound is returned when a particle id has no sample at a
	// requested timestamp.
	ErrParticleNotFound = errors.New("particle not found")
	// ErrFrameNotFound is returned when no frame lies at a requested
	// timestamp.
	ErrFrameNotFound = errors.New("frame not found")
)

// Record is a single particle at a single timestamp.
type Record struct {
	ID   int64
	Type int
	Pos  geom.Vec
	Vel  geom.Vec
}

// Frame is the set of particle records at one timestamp.
type Frame struct {
	Time    float64
	Records []Record
}

// Dataset is an ordered sequence of frames. Times are strictly increasing.
// Implementations must be safe for concurrent reads.
type Dataset interface {
	Len() int
	Time(i int) float64
	Frame(i int) *Frame
}

// Memory is a Dataset whose frames are already resident in memory.
type Memory struct {
	frames []Frame
}

// NewMemory returns a Dataset over frames, sorted by time. It is an error
// for two frames to share a timestamp, for a timestamp to be NaN, or for an
// id to appear twice within a frame.
func NewMemory(frames []Frame) (*Memory, error) {
	fs := append([]Frame(nil), frames...)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Time < fs[j].Time })

	for i := range fs {
		if math.IsNaN(fs[i].Time) || math.IsInf(fs[i].Time, 0) {
			return nil, fmt.Errorf("frame %d has non-finite time %g", i, fs[i].Time)
		}
		if i > 0 && fs[i].Time == fs[i-1].Time {
			return nil, fmt.Errorf("two frames at time %g", fs[i].Time)
		}
		seen := make(map[int64]struct{}, len(fs[i].Records))
		for _, r := range fs[i].Records {
			if _, ok := seen[r.ID]; ok {
				return nil, fmt.Errorf("particle %d appears twice in frame at time %g",
					r.ID, fs[i].Time)
			}
			seen[r.ID] = struct{}{}
		}
	}
	return &Memory{fs}, nil
}

func (m *Memory) Len() int           { return len(m.frames) }
func (m *Memory) Time(i int) float64 { return m.frames[i].Time }
func (m *Memory) Frame(i int) *Frame { return &m.frames[i] }
func (m *Memory) Frames() []Frame    { return m.frames }

// Span returns the times of the first and last frames.
func (m *Memory) Span() (float64, float64) {
	if len(m.frames) == 0 {
		return 0, 0
	}
	return m.frames[0].Time, m.frames[len(m.frames)-1].Time
}

// FrameAt returns the index of the frame within tol of t.
func FrameAt(ds Dataset, t, tol float64) (int, error) {
	n := ds.Len()
	i := sort.Search(n, func(i int) bool { return ds.Time(i) >= t-tol })
	if i < n && math.Abs(ds.Time(i)-t) <= tol {
		return i, nil
	}
	return -1, fmt.Errorf("%w: t = %g", ErrFrameNotFound, t)
}

// IDMap returns the index of each particle id within a frame.
func IDMap(f *Frame) map[int64]int {
	m := make(map[int64]int, len(f.Records))
	for i := range f.Records {
		m[f.Records[i].ID] = i
	}
	return m
}

// Find returns the record for id in f.
func Find(f *Frame, id int64) (Record, bool) {
	for i := range f.Records {
		if f.Records[i].ID == id {
			return f.Records[i], true
		}
	}
	return Record{}, false
}

// Positions returns the positions of every record in the window matching sel.
func Positions(ds Dataset, w Window, sel Selector) []geom.Vec {
	xs := []geom.Vec{}
	for _, i := range w.Frames(ds) {
		for _, r := range ds.Frame(i).Records {
			if sel.Match(&r) {
				xs = append(xs, r.Pos)
			}
		}
	}
	return xs
}
