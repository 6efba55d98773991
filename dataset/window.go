package dataset

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Window is the closed time interval [Start, End].
type Window struct {
	Start, End float64
}

// NewWindow returns the window [start, end]. end must not precede start.
func NewWindow(start, end float64) (Window, error) {
	if math.IsNaN(start) || math.IsNaN(end) || end < start {
		return Window{}, fmt.Errorf("invalid time window [%g, %g]", start, end)
	}
	return Window{start, end}, nil
}

// Instant returns the window containing only t.
func Instant(t float64) Window { return Window{t, t} }

func (w Window) Contains(t float64) bool { return t >= w.Start && t <= w.End }
func (w Window) Duration() float64       { return w.End - w.Start }

func (w Window) String() string {
	if w.Start == w.End {
		return fmt.Sprintf("t = %g", w.Start)
	}
	return fmt.Sprintf("t = [%g, %g]", w.Start, w.End)
}

// Frames returns the indices of the frames of ds inside the window, in time
// order.
func (w Window) Frames(ds Dataset) []int {
	n := ds.Len()
	lo := sort.Search(n, func(i int) bool { return ds.Time(i) >= w.Start })
	hi := sort.Search(n, func(i int) bool { return ds.Time(i) > w.End })
	if hi < lo {
		return []int{}
	}
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

// Residence returns the time each frame in frames stands for: the gap to the
// next frame, with the last frame reusing the gap before it. A single frame
// has unit weight.
func Residence(ds Dataset, frames []int) []float64 {
	dts := make([]float64, len(frames))
	switch len(frames) {
	case 0:
		return dts
	case 1:
		dts[0] = 1
		return dts
	}
	for k := 0; k < len(frames)-1; k++ {
		dts[k] = ds.Time(frames[k+1]) - ds.Time(frames[k])
	}
	dts[len(dts)-1] = dts[len(dts)-2]
	return dts
}

// Cursor is the time selection of one analysis session. Queries that are not
// given an explicit window read it. A Cursor may be shared between
// goroutines, but sessions that need independent selections should each own
// one.
type Cursor struct {
	mu  sync.RWMutex
	w   Window
	set bool
}

// SetTime selects the single instant t.
func (c *Cursor) SetTime(t float64) {
	c.Select(Instant(t))
}

// Select selects the window w.
func (c *Cursor) Select(w Window) {
	c.mu.Lock()
	c.w, c.set = w, true
	c.mu.Unlock()
}

// Clear drops the current selection.
func (c *Cursor) Clear() {
	c.mu.Lock()
	c.w, c.set = Window{}, false
	c.mu.Unlock()
}

// Window returns the current selection, or ErrNoTimeWindowSelected.
func (c *Cursor) Window() (Window, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return Window{}, ErrNoTimeWindowSelected
	}
	return c.w, nil
}

// Selector is a pre-aggregation mask over particle records. Empty criteria
// match everything; non-empty criteria must all match.
type Selector struct {
	Types   []int
	IDs     []int64
	IDRange *[2]int64
}

// All matches every record.
var All = Selector{}

// Species returns a selector matching any of the given types.
func Species(types ...int) Selector { return Selector{Types: types} }

// IDRange returns a selector matching lo <= id <= hi.
func IDRange(lo, hi int64) Selector { return Selector{IDRange: &[2]int64{lo, hi}} }

// Match returns true if r passes every criterion of the selector.
func (s Selector) Match(r *Record) bool {
	if len(s.Types) > 0 && !containsInt(s.Types, r.Type) {
		return false
	}
	if len(s.IDs) > 0 && !containsInt64(s.IDs, r.ID) {
		return false
	}
	if s.IDRange != nil && (r.ID < s.IDRange[0] || r.ID > s.IDRange[1]) {
		return false
	}
	return true
}

func (s Selector) String() string {
	if len(s.Types) == 0 && len(s.IDs) == 0 && s.IDRange == nil {
		return "all"
	}
	str := ""
	if len(s.Types) > 0 {
		str += fmt.Sprintf("types %v ", s.Types)
	}
	if len(s.IDs) > 0 {
		str += fmt.Sprintf("ids %v ", s.IDs)
	}
	if s.IDRange != nil {
		str += fmt.Sprintf("ids [%d, %d] ", s.IDRange[0], s.IDRange[1])
	}
	return str[:len(str)-1]
}

func containsInt(xs []int, x int) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}

func containsInt64(xs []int64, x int64) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}
