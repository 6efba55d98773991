package main

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/table"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/geom"
)

const (
	timeCol = iota
	idCol
	typeCol
	xCol
	yCol
	zCol
	vxCol
	vyCol
	vzCol
	columns
)

// readSamples reads a whitespace separated table with the columns
// time id type x y z vx vy vz into a dataset. Rows sharing a time form one
// frame.
func readSamples(fname string) (*dataset.Memory, error) {
	colIdxs := make([]int, columns)
	for i := range colIdxs {
		colIdxs[i] = i
	}
	cols, err := table.ReadTable(fname, colIdxs, nil)
	if err != nil {
		return nil, err
	}
	return samplesFromColumns(cols)
}

func samplesFromColumns(cols [][]float64) (*dataset.Memory, error) {
	if len(cols) != columns {
		return nil, fmt.Errorf("Expected %d columns, got %d.", columns, len(cols))
	}
	n := len(cols[timeCol])

	byTime := map[float64]int{}
	frames := []dataset.Frame{}
	for i := 0; i < n; i++ {
		id, typ := cols[idCol][i], cols[typeCol][i]
		if id != math.Trunc(id) || typ != math.Trunc(typ) {
			return nil, fmt.Errorf(
				"Row %d has a non-integer id or type (%g, %g).", i, id, typ,
			)
		}

		t := cols[timeCol][i]
		k, ok := byTime[t]
		if !ok {
			k = len(frames)
			byTime[t] = k
			frames = append(frames, dataset.Frame{Time: t})
		}
		frames[k].Records = append(frames[k].Records, dataset.Record{
			ID:   int64(id),
			Type: int(typ),
			Pos:  geom.Vec{cols[xCol][i], cols[yCol][i], cols[zCol][i]},
			Vel:  geom.Vec{cols[vxCol][i], cols[vyCol][i], cols[vzCol][i]},
		})
	}

	return dataset.NewMemory(frames)
}
