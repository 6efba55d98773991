package field

import (
	"context"
	"fmt"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/density"
	"github.com/phil-mansfield/granflow/geom"
)

// Options control how the engine walks a dataset.
type Options struct {
	// Workers is the number of goroutines binning records. Zero means one
	// per CPU.
	Workers int
	// ChunkSize is the number of records handed to a worker at once.
	ChunkSize int
	// MinCount is the number of particles a cell must exceed to count as
	// occupied, and must reach to take part in mixing indices.
	MinCount int
	// MinDuration is the occupied time below which a cell reports zero
	// occupancy.
	MinDuration float64
	// TimeTolerance is how far a requested time may lie from a frame time.
	TimeTolerance float64
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:     density.DefaultChunkSize,
		TimeTolerance: 1e-9,
	}
}

// Query is the selection a field is computed over.
type Query struct {
	Window   dataset.Window
	Selector dataset.Selector
	Options  Options
}

func (q Query) tag(name string) Tag {
	return Tag{Name: name, Window: q.Window, Selector: q.Selector}
}

// pass is one parallel walk over the selected records of a window.
type pass struct {
	ds      dataset.Dataset
	frames  []int
	dts     []float64
	chunks  []density.Chunk
	workers int
}

func newPass(ds dataset.Dataset, frames []int, opt Options) *pass {
	sizes := make([]int, len(frames))
	ks := make([]int, len(frames))
	for k, i := range frames {
		sizes[k] = len(ds.Frame(i).Records)
		ks[k] = k
	}
	p := &pass{
		ds:     ds,
		frames: frames,
		dts:    dataset.Residence(ds, frames),
		chunks: density.Partition(ks, sizes, opt.ChunkSize),
	}
	p.workers = density.Workers(opt.Workers, len(p.chunks))
	return p
}

func windowPass(ds dataset.Dataset, q Query) *pass {
	return newPass(ds, q.Window.Frames(ds), q.Options)
}

// run calls visit on every record matching sel. k is the position of the
// record's frame in p.frames and worker is the goroutine doing the call.
func (p *pass) run(
	ctx context.Context, sel dataset.Selector,
	visit func(worker, k int, r *dataset.Record),
) error {
	return density.Run(ctx, p.workers, p.chunks, func(w int, c density.Chunk) {
		f := p.ds.Frame(p.frames[c.Frame])
		for j := c.Lo; j < c.Hi; j++ {
			r := &f.Records[j]
			if sel.Match(r) {
				visit(w, c.Frame, r)
			}
		}
	})
}

// duration returns the total residence time of the pass.
func (p *pass) duration() float64 {
	t := 0.0
	for _, dt := range p.dts {
		t += dt
	}
	return t
}

// moments returns one accumulator per worker.
func (p *pass) moments(cells, dim int) []*density.Moments {
	accs := make([]*density.Moments, p.workers)
	for i := range accs {
		accs[i] = density.NewMoments(cells, dim)
	}
	return accs
}

// merge folds the per-worker accumulators together in worker order.
func merge(accs []*density.Moments) *density.Moments {
	for _, acc := range accs[1:] {
		accs[0].Merge(acc)
	}
	return accs[0]
}

func sumInts(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

// Number returns the number of selected particles in each cell, summed over
// the frames of the window, or averaged over them if average is set. Every
// cell is defined and weighted by the frame count.
func Number(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query, average bool,
) (*Field, error) {
	p := windowPass(ds, q)
	accs := p.moments(g.Cells(), 0)
	excluded := make([]int, p.workers)

	err := p.run(ctx, q.Selector, func(w, k int, r *dataset.Record) {
		if id, ok := g.CellID(r.Pos); ok {
			accs[w].Add(id, nil, 1)
		} else {
			excluded[w]++
		}
	})
	if err != nil {
		return nil, err
	}
	acc := merge(accs)

	name := "number"
	norm := 1.0
	if average {
		name = "mean number"
		if len(p.frames) > 0 {
			norm = 1 / float64(len(p.frames))
		}
	}

	f := New(g, q.tag(name))
	f.Frames = len(p.frames)
	for id := 0; id < f.Len(); id++ {
		f.Set(id, float64(acc.Count(id))*norm, float64(len(p.frames)))
	}
	f.Excluded = float64(sumInts(excluded)) * norm
	return f, nil
}

// Occupancy returns, for each cell, the fraction of the window during which
// it held more than Options.MinCount selected particles. Cells occupied for
// less than Options.MinDuration report zero. Every cell is defined and
// weighted by the window duration.
func Occupancy(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query,
) (*Field, error) {
	p := windowPass(ds, q)
	cells := g.Cells()
	// Per-worker counts keyed by k*cells + cell id.
	counts := make([]map[int]int, p.workers)
	for i := range counts {
		counts[i] = map[int]int{}
	}
	excluded := make([]int, p.workers)

	err := p.run(ctx, q.Selector, func(w, k int, r *dataset.Record) {
		if id, ok := g.CellID(r.Pos); ok {
			counts[w][k*cells+id]++
		} else {
			excluded[w]++
		}
	})
	if err != nil {
		return nil, err
	}

	total := map[int]int{}
	for _, m := range counts {
		for key, n := range m {
			total[key] += n
		}
	}
	occupied := make([]float64, cells)
	for key, n := range total {
		if n > q.Options.MinCount {
			occupied[key%cells] += p.dts[key/cells]
		}
	}

	dur := p.duration()
	f := New(g, q.tag("occupancy"))
	f.Frames = len(p.frames)
	for id := range occupied {
		v := 0.0
		if dur > 0 && occupied[id] > 0 && occupied[id] >= q.Options.MinDuration {
			v = occupied[id] / dur
		}
		f.Set(id, v, dur)
	}
	f.Excluded = float64(sumInts(excluded))
	return f, nil
}

// Quantity is a per-particle vector that can be averaged into a Vector.
type Quantity int

const (
	Velocity Quantity = iota
	// Displacement is the change in position between a frame and the next
	// frame of the dataset holding the same particle id, binned at the
	// earlier position.
	Displacement
)

func (q Quantity) String() string {
	if q == Displacement {
		return "displacement"
	}
	return "velocity"
}

// VectorField returns the residence-time weighted mean of a quantity over the
// selected particles in each cell. Cells with no residence time are
// undefined.
func VectorField(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query, qty Quantity,
) (*Vector, error) {
	p := windowPass(ds, q)
	accs := p.moments(g.Cells(), 3)
	excluded := make([]int, p.workers)
	next := make([]nextFrame, p.workers)

	err := p.run(ctx, q.Selector, func(w, k int, r *dataset.Record) {
		id, ok := g.CellID(r.Pos)
		if !ok {
			excluded[w]++
			return
		}
		x := r.Vel
		if qty == Displacement {
			nr, ok := next[w].find(ds, p.frames[k], r.ID)
			if !ok {
				return
			}
			x = nr.Pos.Sub(r.Pos)
		}
		accs[w].Add(id, x[:], p.dts[k])
	})
	if err != nil {
		return nil, err
	}
	acc := merge(accs)

	v := newVector(g, q.tag(qty.String()))
	mean := make([]float64, 3)
	for id := 0; id < v.Len(); id++ {
		wt := acc.Weight(id)
		if !(wt > 0) {
			continue
		}
		mean = acc.Mean(id, mean)
		v.Set(id, geom.Vec{mean[0], mean[1], mean[2]}, wt)
	}
	for k := range v.Comp {
		v.Comp[k].Excluded = float64(sumInts(excluded))
		v.Comp[k].Frames = len(p.frames)
	}
	return v, nil
}

// VelocityField is VectorField of Velocity.
func VelocityField(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query,
) (*Vector, error) {
	return VectorField(ctx, ds, g, q, Velocity)
}

// nextFrame caches the id map of the frame after the last one a worker asked
// about. Workers see their chunks in frame order, so one entry suffices.
type nextFrame struct {
	frame int
	ids   map[int64]int
}

func (nf *nextFrame) find(ds dataset.Dataset, frame int, id int64) (dataset.Record, bool) {
	n := frame + 1
	if n >= ds.Len() {
		return dataset.Record{}, false
	}
	if nf.ids == nil || nf.frame != n {
		nf.frame, nf.ids = n, dataset.IDMap(ds.Frame(n))
	}
	j, ok := nf.ids[id]
	if !ok {
		return dataset.Record{}, false
	}
	return ds.Frame(n).Records[j], true
}

// Concentration returns n_a / (n_a + n_b) in each cell, where n_a and n_b are
// the residence-weighted amounts of the two species. Records of other species
// are ignored. Cells holding neither species are undefined. Weights are the
// number of particle samples of either species.
func Concentration(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query, typeA, typeB int,
) (*Field, error) {
	p := windowPass(ds, q)
	accs := p.moments(g.Cells(), 1)
	excluded := make([]int, p.workers)

	err := p.run(ctx, q.Selector, func(w, k int, r *dataset.Record) {
		if r.Type != typeA && r.Type != typeB {
			return
		}
		id, ok := g.CellID(r.Pos)
		if !ok {
			excluded[w]++
			return
		}
		x := 0.0
		if r.Type == typeA {
			x = 1
		}
		accs[w].AddScalar(id, x, p.dts[k])
	})
	if err != nil {
		return nil, err
	}
	acc := merge(accs)

	f := New(g, q.tag(fmt.Sprintf("concentration %d/%d", typeA, typeB)))
	f.Frames = len(p.frames)
	mean := make([]float64, 1)
	for id := 0; id < f.Len(); id++ {
		if !(acc.Weight(id) > 0) {
			continue
		}
		mean = acc.Mean(id, mean)
		f.Set(id, mean[0], float64(acc.Count(id)))
	}
	f.Excluded = float64(sumInts(excluded))
	return f, nil
}

// GranularTemperature returns the mean of the three residence-weighted
// velocity variances in each cell, (var vx + var vy + var vz) / 3. Cells
// visited by fewer than two distinct particles are undefined.
func GranularTemperature(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query,
) (*Field, error) {
	p := windowPass(ds, q)
	accs := p.moments(g.Cells(), 3)
	excluded := make([]int, p.workers)
	visitors := make([]cellIDs, p.workers)
	for i := range visitors {
		visitors[i] = cellIDs{}
	}

	err := p.run(ctx, q.Selector, func(w, k int, r *dataset.Record) {
		if id, ok := g.CellID(r.Pos); ok {
			accs[w].Add(id, r.Vel[:], p.dts[k])
			visitors[w].add(id, r.ID)
		} else {
			excluded[w]++
		}
	})
	if err != nil {
		return nil, err
	}
	acc := merge(accs)
	for _, v := range visitors[1:] {
		visitors[0].merge(v)
	}

	f := New(g, q.tag("granular temperature"))
	f.Frames = len(p.frames)
	vr := make([]float64, 3)
	for id := 0; id < f.Len(); id++ {
		if len(visitors[0][id]) < 2 || !(acc.Weight(id) > 0) {
			f.weights[id] = acc.Weight(id)
			continue
		}
		vr = acc.Variance(id, vr)
		f.Set(id, (vr[0]+vr[1]+vr[2])/3, acc.Weight(id))
	}
	f.Excluded = float64(sumInts(excluded))
	return f, nil
}

// cellIDs is the set of particle ids seen in each cell.
type cellIDs map[int]map[int64]struct{}

func (c cellIDs) add(cell int, id int64) {
	ids, ok := c[cell]
	if !ok {
		ids = map[int64]struct{}{}
		c[cell] = ids
	}
	ids[id] = struct{}{}
}

func (c cellIDs) merge(other cellIDs) {
	for cell, ids := range other {
		for id := range ids {
			c.add(cell, id)
		}
	}
}

// MSDField returns the mean squared displacement between times t0 and t1 of
// the selected particles present in both frames, binned at their position at
// t0. Weights are particle counts. Cells no such particle starts in are
// undefined.
func MSDField(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q Query, t0, t1 float64,
) (*Field, error) {
	i0, err := dataset.FrameAt(ds, t0, q.Options.TimeTolerance)
	if err != nil {
		return nil, err
	}
	i1, err := dataset.FrameAt(ds, t1, q.Options.TimeTolerance)
	if err != nil {
		return nil, err
	}
	end := dataset.IDMap(ds.Frame(i1))
	f1 := ds.Frame(i1)

	p := newPass(ds, []int{i0}, q.Options)
	accs := p.moments(g.Cells(), 1)
	excluded := make([]int, p.workers)

	err = p.run(ctx, q.Selector, func(w, k int, r *dataset.Record) {
		j, ok := end[r.ID]
		if !ok {
			return
		}
		id, ok := g.CellID(r.Pos)
		if !ok {
			excluded[w]++
			return
		}
		accs[w].AddScalar(id, f1.Records[j].Pos.Sub(r.Pos).Norm2(), 1)
	})
	if err != nil {
		return nil, err
	}
	acc := merge(accs)

	lo, hi := ds.Time(i0), ds.Time(i1)
	if hi < lo {
		lo, hi = hi, lo
	}
	f := New(g, Tag{Name: "msd", Window: dataset.Window{Start: lo, End: hi}, Selector: q.Selector})
	f.Frames = 2
	mean := make([]float64, 1)
	for id := 0; id < f.Len(); id++ {
		if acc.Count(id) == 0 {
			continue
		}
		mean = acc.Mean(id, mean)
		f.Set(id, mean[0], float64(acc.Count(id)))
	}
	f.Excluded = float64(sumInts(excluded))
	return f, nil
}
