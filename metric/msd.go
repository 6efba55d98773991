package metric

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
)

// MSDResult is the squared displacement of one particle between two times.
type MSDResult struct {
	Tag    field.Tag
	ID     int64
	T0, T1 float64
	Value  float64
}

// MSD returns |x(t1) - x(t0)|^2 for particle id. Both times must lie within
// tol of a frame holding the particle, otherwise the error wraps
// dataset.ErrParticleNotFound.
func MSD(ds dataset.Dataset, id int64, t0, t1, tol float64) (MSDResult, error) {
	res := MSDResult{
		Tag: tag("msd", dataset.Window{Start: t0, End: t1}, dataset.Selector{IDs: []int64{id}}),
		ID:  id, T0: t0, T1: t1,
	}
	r0, err := sampleAt(ds, id, t0, tol)
	if err != nil {
		return res, err
	}
	r1, err := sampleAt(ds, id, t1, tol)
	if err != nil {
		return res, err
	}
	res.Value = r1.Pos.Sub(r0.Pos).Norm2()
	return res, nil
}

func sampleAt(ds dataset.Dataset, id int64, t, tol float64) (dataset.Record, error) {
	i, err := dataset.FrameAt(ds, t, tol)
	if err != nil {
		return dataset.Record{}, fmt.Errorf("%w: id %d at t = %g: %v",
			dataset.ErrParticleNotFound, id, t, err)
	}
	r, ok := dataset.Find(ds.Frame(i), id)
	if !ok {
		return dataset.Record{}, fmt.Errorf("%w: id %d at t = %g",
			dataset.ErrParticleNotFound, id, t)
	}
	return r, nil
}

// MSDPoint is the mean squared displacement at one lag time.
type MSDPoint struct {
	Lag   float64 `csv:"lag"`
	Value float64 `csv:"msd"`
	// Pairs is the number of (particle, start time) pairs averaged. Value is
	// meaningless when it is zero.
	Pairs int `csv:"pairs"`
}

// MSDCurve averages the squared displacement over every selected particle and
// every pair of its samples in the window separated by each lag, within tol.
func MSDCurve(
	ds dataset.Dataset, w dataset.Window, sel dataset.Selector, lags []float64, tol float64,
) ([]MSDPoint, error) {
	for _, lag := range lags {
		if !(lag >= 0) {
			return nil, fmt.Errorf("lag times must be non-negative, got %g", lag)
		}
	}

	trs := dataset.Trajectories(ds, w, sel)
	ids := dataset.SortedIDs(trs)
	out := make([]MSDPoint, len(lags))
	for i, lag := range lags {
		out[i].Lag = lag
		d2 := []float64{}
		for _, id := range ids {
			tr := trs[id]
			for _, s := range tr.Samples {
				e, err := tr.At(s.Time+lag, tol)
				if err != nil {
					continue
				}
				d2 = append(d2, e.Pos.Sub(s.Pos).Norm2())
			}
		}
		out[i].Pairs = len(d2)
		if len(d2) > 0 {
			out[i].Value = floats.SumCompensated(d2) / float64(len(d2))
		}
	}
	return out, nil
}
