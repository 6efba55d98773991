package metric

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
)

// LaceyResult is a Lacey-style comparison of the concentration variance of
// two species against its fully mixed and fully segregated limits.
//
// Index is (S2 - Mixed) / (Segregated - Mixed) clamped to [0, 1]: 1 for a
// fully segregated arrangement and 0 for one at least as well mixed as a
// random one. Mixing is 1 - Index, the conventional orientation.
type LaceyResult struct {
	Tag    field.Tag
	Index  float64
	Mixing float64

	// S2 is the variance of the cell concentrations about P, the overall
	// fraction of species A.
	S2, P float64
	// Segregated is P(1 - P) and Mixed is Segregated / MeanCount.
	Segregated, Mixed float64
	// Cells is the number of cells sampled and MeanCount their mean number
	// of particles per frame.
	Cells     int
	MeanCount float64
}

// Lacey computes the mixing index of species a and b from their
// concentration field on g. Cells holding fewer than Options.MinCount
// particles per frame, and empty cells, are left out.
func Lacey(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q field.Query, a, b int,
) (LaceyResult, error) {
	conc, err := field.Concentration(ctx, ds, g, q, a, b)
	if err != nil {
		return LaceyResult{}, err
	}
	res, err := lacey(conc, q.Options.MinCount, nil)
	res.Tag = conc.Tag
	res.Tag.Name = "lacey"
	return res, err
}

// Homogeneity is Lacey restricted to the cells whose mean velocity magnitude
// exceeds minVelocity. Cells below it take no part in the index at all,
// including the overall fraction P.
func Homogeneity(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q field.Query,
	a, b int, minVelocity float64,
) (LaceyResult, error) {
	conc, err := field.Concentration(ctx, ds, g, q, a, b)
	if err != nil {
		return LaceyResult{}, err
	}
	vel, err := field.VelocityField(ctx, ds, g, q)
	if err != nil {
		return LaceyResult{}, err
	}
	speed := vel.Magnitude()
	active := func(id int) bool {
		v, ok := speed.Cell(id)
		return ok && v > minVelocity
	}

	res, err := lacey(conc, q.Options.MinCount, active)
	res.Tag = conc.Tag
	res.Tag.Name = "homogeneity"
	return res, err
}

// LogValue implements slog.LogValuer.
func (r LaceyResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", r.Tag.Name),
		slog.Float64("index", r.Index),
		slog.Float64("mixing", r.Mixing),
		slog.Float64("p", r.P),
		slog.Int("cells", r.Cells),
		slog.Float64("mean_count", r.MeanCount),
	)
}

func lacey(conc *field.Field, minCount int, active func(id int) bool) (LaceyResult, error) {
	res := LaceyResult{}
	if conc.Frames == 0 {
		return res, fmt.Errorf("%w: no frames in %s", field.ErrUndefinedAggregate,
			conc.Tag.Window)
	}
	frames := float64(conc.Frames)

	var cs, ws, cws []float64
	for id := 0; id < conc.Len(); id++ {
		c, ok := conc.Cell(id)
		if !ok || (active != nil && !active(id)) {
			continue
		}
		w := conc.Weight(id)
		if !(w > 0) || w/frames < float64(minCount) {
			continue
		}
		cs = append(cs, c)
		ws = append(ws, w)
		cws = append(cws, c*w)
	}
	res.Cells = len(cs)
	if res.Cells < 2 {
		return res, fmt.Errorf("%w: %d cells sampled, need at least two",
			field.ErrUndefinedAggregate, res.Cells)
	}

	total := floats.SumCompensated(ws)
	res.P = floats.SumCompensated(cws) / total
	res.MeanCount = total / frames / float64(res.Cells)
	res.Segregated = res.P * (1 - res.P)
	res.Mixed = res.Segregated / res.MeanCount

	dev := make([]float64, len(cs))
	for i, c := range cs {
		dev[i] = (c - res.P) * (c - res.P)
	}
	res.S2 = floats.SumCompensated(dev) / float64(res.Cells)

	den := res.Segregated - res.Mixed
	if !(res.Segregated > 0) || !(den > 0) {
		return res, fmt.Errorf(
			"%w: mixing limits are degenerate (P = %g, %g particles per cell)",
			field.ErrUndefinedAggregate, res.P, res.MeanCount,
		)
	}
	res.Index = clamp((res.S2-res.Mixed)/den, 0, 1)
	res.Mixing = 1 - res.Index
	return res, nil
}

// LaceyPoint is the mixing index of a single frame.
type LaceyPoint struct {
	Time   float64 `csv:"time"`
	Index  float64 `csv:"index"`
	Mixing float64 `csv:"mixing"`
	Cells  int     `csv:"cells"`
}

// LaceySeries computes Lacey on every frame of the window separately. Frames
// where the index is undefined are skipped.
func LaceySeries(
	ctx context.Context, ds dataset.Dataset, g *geom.Grid, q field.Query, a, b int,
) ([]LaceyPoint, error) {
	out := []LaceyPoint{}
	for _, i := range q.Window.Frames(ds) {
		fq := q
		fq.Window = dataset.Instant(ds.Time(i))
		res, err := Lacey(ctx, ds, g, fq, a, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		out = append(out, LaceyPoint{ds.Time(i), res.Index, res.Mixing, res.Cells})
	}
	return out, nil
}
