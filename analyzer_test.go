package granflow

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
	"github.com/phil-mansfield/granflow/metric"
)

// octants returns frames at t = 0, 5, 10 holding one particle at the center
// of each octant of [0, 100]^3, plus particle 5 moving from the origin along
// +x at unit speed and one stray particle outside the box.
func octants(t *testing.T) *dataset.Memory {
	frames := []dataset.Frame{}
	for _, time := range []float64{0, 5, 10} {
		recs := []dataset.Record{}
		id := int64(100)
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				for k := 0; k < 2; k++ {
					recs = append(recs, dataset.Record{
						ID: id, Type: i,
						Pos: geom.Vec{25 + 50*float64(i), 25 + 50*float64(j), 25 + 50*float64(k)},
						Vel: geom.Vec{1, 0, 0},
					})
					id++
				}
			}
		}
		recs = append(recs,
			dataset.Record{ID: 5, Type: 2, Pos: geom.Vec{time, 0, 0}, Vel: geom.Vec{1, 0, 0}},
			dataset.Record{ID: 6, Type: 2, Pos: geom.Vec{-10, -10, -10}},
		)
		frames = append(frames, dataset.Frame{Time: time, Records: recs})
	}
	ds, err := dataset.NewMemory(frames)
	require.NoError(t, err)
	return ds
}

func box(t *testing.T) *geom.Grid {
	g, err := geom.NewCartesian([3]int{2, 2, 2},
		[3][2]float64{{0, 100}, {0, 100}, {0, 100}})
	require.NoError(t, err)
	return g
}

func TestNoTimeWindowSelected(t *testing.T) {
	a := New(octants(t))
	g := box(t)
	ctx := context.Background()
	sel := dataset.All

	errs := []error{}
	add := func(err error) { errs = append(errs, err) }

	_, err := a.NumberField(ctx, g, sel, false)
	add(err)
	_, err = a.OccupancyField(ctx, g, sel)
	add(err)
	_, err = a.VelocityField(ctx, g, sel)
	add(err)
	_, err = a.ConcentrationField(ctx, g, sel, 0, 1)
	add(err)
	_, err = a.GranularTemperature(ctx, g, sel)
	add(err)
	_, err = a.MSDField(ctx, g, sel, 0, 10)
	add(err)
	_, err = a.Stats(sel)
	add(err)
	_, err = a.NParticles(sel)
	add(err)
	_, err = a.Dimensions(sel)
	add(err)
	_, err = a.Dispersion(sel, 0, 50, 1)
	add(err)
	_, err = a.CirculationTime(sel, metric.Slab{Axis: 0, Lo: 0, Hi: 50}, metric.Exit)
	add(err)
	_, err = a.ResidenceTimes(sel, metric.Slab{Axis: 0, Lo: 0, Hi: 50})
	add(err)
	_, err = a.Histogram(sel, "x", []float64{0, 100})
	add(err)
	_, err = a.Lacey(ctx, g, sel, 0, 1)
	add(err)
	_, err = a.Homogeneity(ctx, g, sel, 0, 1, 0)
	add(err)
	_, err = a.MSD(5, 0, 10)
	add(err)
	_, err = a.MSDCurve(sel, []float64{5})
	add(err)

	for i, err := range errs {
		assert.ErrorIs(t, err, dataset.ErrNoTimeWindowSelected, "query %d", i)
	}
}

func TestSetTime(t *testing.T) {
	a := New(octants(t))
	require.NoError(t, a.SetTime(5))
	w, err := a.Window()
	require.NoError(t, err)
	assert.Equal(t, dataset.Instant(5), w)

	assert.ErrorIs(t, a.SetTime(4), dataset.ErrFrameNotFound)
	w, err = a.Window()
	require.NoError(t, err)
	assert.Equal(t, dataset.Instant(5), w)

	assert.Error(t, a.SelectWindow(10, 0))
	require.NoError(t, a.SelectWindow(0, 10))
	w, err = a.Window()
	require.NoError(t, err)
	assert.Equal(t, dataset.Window{Start: 0, End: 10}, w)
}

func TestOctants(t *testing.T) {
	a := New(octants(t))
	require.NoError(t, a.SetTime(0))
	g := box(t)

	f, err := a.NumberField(context.Background(), g, dataset.Species(0, 1), false)
	require.NoError(t, err)
	for id := 0; id < f.Len(); id++ {
		v, ok := f.Cell(id)
		assert.True(t, ok)
		assert.Equal(t, 1.0, v)
	}
	assert.Equal(t, 0.0, f.Excluded)

	// Particle 5 sits on the lower corner, which belongs to cell 0.
	f, err = a.NumberField(context.Background(), g, dataset.All, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Excluded)
	n, err := a.NParticles(dataset.All)
	require.NoError(t, err)
	assert.Equal(t, float64(n), f.Sum()+f.Excluded)
}

func TestAt(t *testing.T) {
	a := New(octants(t))
	require.NoError(t, a.SetTime(0))

	b := a.At(dataset.Window{Start: 0, End: 10})
	n, err := b.NParticles(dataset.Species(0))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = a.NParticles(dataset.Species(0))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMSD(t *testing.T) {
	a := New(octants(t))
	require.NoError(t, a.SelectWindow(0, 10))

	res, err := a.MSD(5, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Value)

	_, err = a.MSD(42, 0, 10)
	assert.ErrorIs(t, err, dataset.ErrParticleNotFound)
}

func TestLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opt := field.DefaultOptions()
	opt.Workers = 2
	a := New(octants(t), WithLogger(log), WithOptions(opt))
	assert.Equal(t, 2, a.Options().Workers)

	require.NoError(t, a.SelectWindow(0, 10))
	_, err := a.NumberField(context.Background(), box(t), dataset.All, true)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "op=number")
	assert.Contains(t, out, "particles outside grid extents")
	assert.Contains(t, out, "excluded=1")
}
