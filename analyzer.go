/*package granflow turns time-resolved particle trajectories into per-cell
fields and transport metrics.

An Analyzer wraps a dataset.Dataset together with the time-window cursor that
every query reads. The engines themselves live in the field and metric
packages and can be called directly with an explicit window.
*/
package granflow

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
	"github.com/phil-mansfield/granflow/metric"
)

// Analyzer is one analysis session over a dataset. Its cursor must not be
// shared between sessions; use At to run queries over a different window
// without touching it.
type Analyzer struct {
	ds     dataset.Dataset
	cursor *dataset.Cursor
	window *dataset.Window

	opt field.Options
	log *slog.Logger
}

// Option configures an Analyzer.
type Option func(a *Analyzer)

// WithOptions sets the engine options used by every query.
func WithOptions(opt field.Options) Option {
	return func(a *Analyzer) { a.opt = opt }
}

// WithLogger sets the logger queries report to. By default nothing is
// logged.
func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) { a.log = log }
}

// New returns an Analyzer over ds with no time window selected.
func New(ds dataset.Dataset, opts ...Option) *Analyzer {
	a := &Analyzer{
		ds:     ds,
		cursor: &dataset.Cursor{},
		opt:    field.DefaultOptions(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) Dataset() dataset.Dataset { return a.ds }
func (a *Analyzer) Options() field.Options   { return a.opt }

// SetTime moves the cursor to the frame within Options.TimeTolerance of t.
func (a *Analyzer) SetTime(t float64) error {
	i, err := dataset.FrameAt(a.ds, t, a.opt.TimeTolerance)
	if err != nil {
		return err
	}
	a.cursor.SetTime(a.ds.Time(i))
	return nil
}

// SelectWindow moves the cursor to the window [start, end].
func (a *Analyzer) SelectWindow(start, end float64) error {
	w, err := dataset.NewWindow(start, end)
	if err != nil {
		return err
	}
	a.cursor.Select(w)
	return nil
}

// Window returns the window queries currently read.
func (a *Analyzer) Window() (dataset.Window, error) {
	if a.window != nil {
		return *a.window, nil
	}
	return a.cursor.Window()
}

// At returns a copy of the Analyzer whose queries read w instead of the
// cursor.
func (a *Analyzer) At(w dataset.Window) *Analyzer {
	b := *a
	b.window = &w
	return &b
}

func (a *Analyzer) query(sel dataset.Selector) (field.Query, error) {
	w, err := a.Window()
	if err != nil {
		return field.Query{}, err
	}
	return field.Query{Window: w, Selector: sel, Options: a.opt}, nil
}

func (a *Analyzer) done(op string, q field.Query, start time.Time, err error) {
	if err != nil {
		a.log.Debug("query failed", "op", op, "window", q.Window.String(), "error", err)
		return
	}
	a.log.Debug("query", "op", op, "window", q.Window.String(),
		"selector", q.Selector.String(), "elapsed", time.Since(start))
}

func (a *Analyzer) checkExcluded(op string, f *field.Field) {
	if f.Excluded > 0 {
		a.log.Warn("particles outside grid extents", "op", op,
			"excluded", f.Excluded, "window", f.Tag.Window.String())
	}
}

// scalarField runs one of the scalar Field Engine queries.
func (a *Analyzer) scalarField(
	op string, sel dataset.Selector, run func(q field.Query) (*field.Field, error),
) (*field.Field, error) {
	q, err := a.query(sel)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	f, err := run(q)
	a.done(op, q, start, err)
	if err != nil {
		return nil, err
	}
	a.checkExcluded(op, f)
	return f, nil
}

// NumberField returns the per-cell particle count over the selected window,
// averaged over its frames if average is set.
func (a *Analyzer) NumberField(
	ctx context.Context, g *geom.Grid, sel dataset.Selector, average bool,
) (*field.Field, error) {
	return a.scalarField("number", sel, func(q field.Query) (*field.Field, error) {
		return field.Number(ctx, a.ds, g, q, average)
	})
}

// OccupancyField returns the fraction of the window each cell was occupied.
func (a *Analyzer) OccupancyField(
	ctx context.Context, g *geom.Grid, sel dataset.Selector,
) (*field.Field, error) {
	return a.scalarField("occupancy", sel, func(q field.Query) (*field.Field, error) {
		return field.Occupancy(ctx, a.ds, g, q)
	})
}

// ConcentrationField returns the per-cell fraction of species typeA among
// typeA and typeB.
func (a *Analyzer) ConcentrationField(
	ctx context.Context, g *geom.Grid, sel dataset.Selector, typeA, typeB int,
) (*field.Field, error) {
	return a.scalarField("concentration", sel, func(q field.Query) (*field.Field, error) {
		return field.Concentration(ctx, a.ds, g, q, typeA, typeB)
	})
}

// GranularTemperature returns the mean velocity variance in each cell visited
// by at least two particles.
func (a *Analyzer) GranularTemperature(
	ctx context.Context, g *geom.Grid, sel dataset.Selector,
) (*field.Field, error) {
	return a.scalarField("temperature", sel, func(q field.Query) (*field.Field, error) {
		return field.GranularTemperature(ctx, a.ds, g, q)
	})
}

// MSDField returns the per-cell mean squared displacement between t0 and t1.
func (a *Analyzer) MSDField(
	ctx context.Context, g *geom.Grid, sel dataset.Selector, t0, t1 float64,
) (*field.Field, error) {
	return a.scalarField("msd", sel, func(q field.Query) (*field.Field, error) {
		return field.MSDField(ctx, a.ds, g, q, t0, t1)
	})
}

// VectorField returns the residence-weighted mean of qty in each cell.
func (a *Analyzer) VectorField(
	ctx context.Context, g *geom.Grid, sel dataset.Selector, qty field.Quantity,
) (*field.Vector, error) {
	q, err := a.query(sel)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	v, err := field.VectorField(ctx, a.ds, g, q, qty)
	a.done(qty.String(), q, start, err)
	if err != nil {
		return nil, err
	}
	a.checkExcluded(qty.String(), v.Comp[0])
	return v, nil
}

// VelocityField is VectorField of field.Velocity.
func (a *Analyzer) VelocityField(
	ctx context.Context, g *geom.Grid, sel dataset.Selector,
) (*field.Vector, error) {
	return a.VectorField(ctx, g, sel, field.Velocity)
}

// Stats summarizes the selected records in the window.
func (a *Analyzer) Stats(sel dataset.Selector) (metric.Summary, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.Summary{}, err
	}
	return metric.Stats(a.ds, q.Window, sel)
}

// NParticles returns the number of selected records in the window, summed
// over its frames.
func (a *Analyzer) NParticles(sel dataset.Selector) (int, error) {
	q, err := a.query(sel)
	if err != nil {
		return 0, err
	}
	return metric.NParticles(a.ds, q.Window, sel), nil
}

// MinPosition returns the per-axis minimum position of the selected records.
func (a *Analyzer) MinPosition(sel dataset.Selector) (geom.Vec, error) {
	q, err := a.query(sel)
	if err != nil {
		return geom.Vec{}, err
	}
	return metric.MinPosition(a.ds, q.Window, sel)
}

// MaxPosition returns the per-axis maximum position of the selected records.
func (a *Analyzer) MaxPosition(sel dataset.Selector) (geom.Vec, error) {
	q, err := a.query(sel)
	if err != nil {
		return geom.Vec{}, err
	}
	return metric.MaxPosition(a.ds, q.Window, sel)
}

// Dimensions returns the extent of the selected records along each axis.
func (a *Analyzer) Dimensions(sel dataset.Selector) (geom.Vec, error) {
	q, err := a.query(sel)
	if err != nil {
		return geom.Vec{}, err
	}
	return metric.Dimensions(a.ds, q.Window, sel)
}

// Dispersion returns the fraction of selected particles crossing boundary
// along axis at least n times in the window.
func (a *Analyzer) Dispersion(
	sel dataset.Selector, axis int, boundary float64, n int,
) (metric.DispersionResult, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.DispersionResult{}, err
	}
	start := time.Now()
	res, err := metric.Dispersion(a.ds, q.Window, sel, axis, boundary, n)
	a.done("dispersion", q, start, err)
	return res, err
}

// CirculationTime returns the times between successive events at region.
func (a *Analyzer) CirculationTime(
	sel dataset.Selector, region metric.Region, event metric.Event,
) (metric.CirculationResult, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.CirculationResult{}, err
	}
	start := time.Now()
	res := metric.CirculationTime(a.ds, q.Window, sel, region, event)
	a.done("circulation", q, start, nil)
	return res, nil
}

// ResidenceTimes returns how long each visit of a selected particle to region
// lasted.
func (a *Analyzer) ResidenceTimes(
	sel dataset.Selector, region metric.Region,
) (metric.ResidenceResult, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.ResidenceResult{}, err
	}
	start := time.Now()
	res := metric.ResidenceTimes(a.ds, q.Window, sel, region)
	a.done("residence", q, start, nil)
	return res, nil
}

// Histogram bins the named record quantity into the given edges.
func (a *Analyzer) Histogram(
	sel dataset.Selector, quantity string, edges []float64,
) (metric.HistogramResult, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.HistogramResult{}, err
	}
	start := time.Now()
	res, err := metric.Histogram(a.ds, q.Window, sel, quantity, edges)
	a.done("histogram", q, start, err)
	if err == nil && res.Dropped > 0 {
		a.log.Debug("histogram dropped values outside its bins",
			"quantity", quantity, "dropped", res.Dropped)
	}
	return res, err
}

// Lacey returns the Lacey mixing index of species typeA and typeB on g.
func (a *Analyzer) Lacey(
	ctx context.Context, g *geom.Grid, sel dataset.Selector, typeA, typeB int,
) (metric.LaceyResult, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.LaceyResult{}, err
	}
	start := time.Now()
	res, err := metric.Lacey(ctx, a.ds, g, q, typeA, typeB)
	a.done("lacey", q, start, err)
	return res, err
}

// LaceySeries returns the Lacey index of every frame in the window.
func (a *Analyzer) LaceySeries(
	ctx context.Context, g *geom.Grid, sel dataset.Selector, typeA, typeB int,
) ([]metric.LaceyPoint, error) {
	q, err := a.query(sel)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := metric.LaceySeries(ctx, a.ds, g, q, typeA, typeB)
	a.done("lacey series", q, start, err)
	return res, err
}

// Homogeneity is Lacey restricted to cells moving faster than minVelocity.
func (a *Analyzer) Homogeneity(
	ctx context.Context, g *geom.Grid, sel dataset.Selector,
	typeA, typeB int, minVelocity float64,
) (metric.LaceyResult, error) {
	q, err := a.query(sel)
	if err != nil {
		return metric.LaceyResult{}, err
	}
	start := time.Now()
	res, err := metric.Homogeneity(ctx, a.ds, g, q, typeA, typeB, minVelocity)
	a.done("homogeneity", q, start, err)
	return res, err
}

// MSD returns the squared displacement of particle id between t0 and t1.
// Like every other query it fails with dataset.ErrNoTimeWindowSelected
// before a window is selected, even though it reads only its own times.
func (a *Analyzer) MSD(id int64, t0, t1 float64) (metric.MSDResult, error) {
	if _, err := a.Window(); err != nil {
		return metric.MSDResult{}, err
	}
	return metric.MSD(a.ds, id, t0, t1, a.opt.TimeTolerance)
}

// MSDCurve returns the mean squared displacement of the selected particles
// at each lag.
func (a *Analyzer) MSDCurve(sel dataset.Selector, lags []float64) ([]metric.MSDPoint, error) {
	q, err := a.query(sel)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := metric.MSDCurve(a.ds, q.Window, sel, lags, a.opt.TimeTolerance)
	a.done("msd curve", q, start, err)
	return res, err
}
