package field

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/granflow/geom"
)

func grid(t testing.TB, cells [3]int) *geom.Grid {
	var lim [3][2]float64
	for i := range lim {
		lim[i] = [2]float64{0, float64(cells[i])}
	}
	g, err := geom.NewCartesian(cells, lim)
	require.NoError(t, err)
	return g
}

// randomField fills a field with random values and weights, leaving roughly
// one cell in five undefined.
func randomField(t testing.TB, seed int64, cells [3]int) *Field {
	gen := rand.New(rand.NewSource(seed))
	f := New(grid(t, cells), Tag{Name: "random"})
	for id := 0; id < f.Len(); id++ {
		if gen.Intn(5) == 0 {
			continue
		}
		f.Set(id, gen.NormFloat64()*10, gen.Float64()*3)
	}
	return f
}

func TestFieldAccess(t *testing.T) {
	f := New(grid(t, [3]int{2, 3, 4}), Tag{Name: "test"})
	assert.Equal(t, []int{2, 3, 4}, f.Shape())
	assert.Equal(t, 3, f.Dims())

	f.Set(f.index.Flat([]int{1, 2, 3}), 7, 2)
	v, ok := f.At(1, 2, 3)
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	v, err := f.AtPos(geom.Vec{1.5, 2.5, 3.5})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	_, err = f.Value(0, 0, 0)
	assert.ErrorIs(t, err, ErrUndefinedAggregate)
	_, err = f.Value(0, 3, 0)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
	_, err = f.AtPos(geom.Vec{10, 0, 0})
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
	assert.Panics(t, func() { f.At(2, 0, 0) })

	_, err = f.Scalar()
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)

	assert.Equal(t, 1, f.DefinedCells())
	f.Unset(f.index.Flat([]int{1, 2, 3}))
	assert.Equal(t, 0, f.DefinedCells())
	assert.Equal(t, 2.0, f.Weight(f.index.Flat([]int{1, 2, 3})))
}

func TestDense(t *testing.T) {
	f := New(grid(t, [3]int{1, 2, 2}), Tag{})
	f.Set(1, 3, 1)
	f.Set(2, 4, 2)

	dense := f.Dense(-1)
	assert.Equal(t, []float64{-1, 3, 4, -1}, dense)
	assert.Equal(t, []float64{0, 1, 2, 0}, f.DenseWeights())
	assert.Equal(t, []bool{false, true, true, false}, f.Mask())
	assert.True(t, math.IsNaN(f.Dense(math.NaN())[0]))

	centers := f.Centers()
	assert.Equal(t, []float64{0.5, 0.5, 1.5}, centers[1])
	assert.Equal(t, []float64{0.5, 1.5, 0.5}, centers[2])

	assert.Equal(t, 7.0, f.Sum())
}

func TestSlice(t *testing.T) {
	f := New(grid(t, [3]int{2, 3, 4}), Tag{})
	for id := 0; id < f.Len(); id++ {
		f.Set(id, float64(id), 1)
	}

	s, err := f.Slice(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, s.Axes())
	assert.Equal(t, []int{2, 4}, s.Shape())
	for i := 0; i < 2; i++ {
		for k := 0; k < 4; k++ {
			v, ok := s.At(i, k)
			require.True(t, ok)
			assert.Equal(t, float64(f.index.Flat([]int{i, 2, k})), v)
		}
	}

	sp, err := f.SlicePos(1, 2.2)
	require.NoError(t, err)
	assert.Equal(t, s.Dense(0), sp.Dense(0))

	line, err := s.Slice(2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, line.Axes())
	point, err := line.Slice(0, 1)
	require.NoError(t, err)
	v, err := point.Scalar()
	require.NoError(t, err)
	assert.Equal(t, float64(f.index.Flat([]int{1, 2, 1})), v)

	_, err = s.Slice(1, 0)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
	_, err = f.Slice(0, 2)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
	_, err = f.Slice(3, 0)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
	_, err = f.SlicePos(2, 4.5)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
}

func TestCollapseSkipsUndefined(t *testing.T) {
	f := New(grid(t, [3]int{3, 1, 1}), Tag{})
	f.Set(0, 4, 1)
	f.Set(1, 10, 3)
	f.weights[2] = 5 // undefined, but with weight

	c, err := f.Collapse(0)
	require.NoError(t, err)
	v, ok := c.At(0, 0)
	require.True(t, ok)
	assert.InDelta(t, (4*1+10*3)/4.0, v, 1e-12)
	assert.Equal(t, 4.0, c.Weight(0))

	// Defined but weightless cells do not contribute either.
	g := New(grid(t, [3]int{2, 1, 1}), Tag{})
	g.Set(0, 4, 0)
	c, err = g.Collapse(0)
	require.NoError(t, err)
	_, ok = c.At(0, 0)
	assert.False(t, ok)
}

func TestCollapseOrder(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		f := randomField(t, seed, [3]int{3, 4, 5})

		a, err := f.Collapse(0)
		require.NoError(t, err)
		a, err = a.Collapse(1)
		require.NoError(t, err)

		b, err := f.CollapseTwo(1, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, b.Axes())
		assert.InDeltaSlice(t, a.Dense(0), b.Dense(0), 1e-9)
		assert.InDeltaSlice(t, a.DenseWeights(), b.DenseWeights(), 1e-9)

		a, err = a.Collapse(2)
		require.NoError(t, err)
		b, err = b.Collapse(2)
		require.NoError(t, err)
		all, err := f.CollapseAll()
		require.NoError(t, err)

		va, err := a.Scalar()
		require.NoError(t, err)
		vb, err := b.Scalar()
		require.NoError(t, err)
		vall, err := all.Scalar()
		require.NoError(t, err)
		assert.InDelta(t, va, vb, 1e-9)
		assert.InDelta(t, va, vall, 1e-9)
	}

	f := randomField(t, 0, [3]int{2, 2, 2})
	_, err := f.CollapseTwo(1, 1)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
	c, _ := f.Collapse(1)
	_, err = c.Collapse(1)
	assert.ErrorIs(t, err, geom.ErrIndexOutOfRange)
}

func TestRemoveOutliers(t *testing.T) {
	f := New(grid(t, [3]int{10, 1, 1}), Tag{})
	for i := 0; i < 9; i++ {
		f.Set(i, float64(i+1), 1)
	}
	f.Set(9, 100, 1)

	out, n, err := f.RemoveOutliers(DefaultOutlierRule())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 9, out.DefinedCells())
	assert.False(t, out.Defined(9))
	assert.True(t, f.Defined(9), "input must not be modified")

	rule := DefaultOutlierRule()
	rule.Mode = Clamp
	out, n, err = f.RemoveOutliers(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v, ok := out.Cell(9)
	require.True(t, ok)
	// median 5, MAD 2: upper bound 5 + 3.5 * 2 / 0.6745
	assert.InDelta(t, 5+3.5*2/0.6745, v, 1e-9)

	_, _, err = f.RemoveOutliers(OutlierRule{Threshold: 0})
	assert.Error(t, err)
}

func TestRemoveOutliersZeroMAD(t *testing.T) {
	f := New(grid(t, [3]int{8, 1, 1}), Tag{})
	for i := 0; i < 7; i++ {
		f.Set(i, 1, 1)
	}
	f.Set(7, 100, 1)

	out, n, err := f.RemoveOutliers(DefaultOutlierRule())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, out.Defined(7))

	// No spread at all: nothing is an outlier.
	g := New(grid(t, [3]int{3, 1, 1}), Tag{})
	for i := 0; i < 3; i++ {
		g.Set(i, 2, 1)
	}
	_, n, err = g.RemoveOutliers(DefaultOutlierRule())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRemoveOutliersZScore(t *testing.T) {
	f := New(grid(t, [3]int{20, 1, 1}), Tag{})
	for i := 0; i < 19; i++ {
		f.Set(i, float64(i%2), 1)
	}
	f.Set(19, 50, 1)

	rule := OutlierRule{Method: ZScore, Threshold: 3}
	out, n, err := f.RemoveOutliers(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, out.Defined(19))
}

func TestCrop(t *testing.T) {
	f := New(grid(t, [3]int{4, 4, 4}), Tag{})
	f.Set(f.index.Flat([]int{1, 2, 0}), 1, 1)
	f.Set(f.index.Flat([]int{2, 2, 3}), 2, 1)

	c, err := f.Crop()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 4}, c.Shape())
	assert.Equal(t, [3][2]float64{{1, 3}, {2, 3}, {0, 4}}, c.Grid().Limits())
	v, ok := c.At(1, 0, 3)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	sl, err := f.Slice(2, 3)
	require.NoError(t, err)
	c, err = sl.Crop()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, c.Shape())
	assert.Equal(t, [2]float64{0, 4}, c.Grid().Limits()[2])

	_, err = New(grid(t, [3]int{2, 2, 2}), Tag{}).Crop()
	assert.ErrorIs(t, err, ErrUndefinedAggregate)
}

func TestTrim(t *testing.T) {
	f := New(grid(t, [3]int{10, 1, 1}), Tag{})
	for i := 0; i < 9; i++ {
		f.Set(i, float64(i+1), 1)
	}
	f.Set(9, 100, 1)

	out, n, err := f.Trim(DefaultOutlierRule())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{9, 1, 1}, out.Shape())
	assert.Equal(t, [2]float64{0, 9}, out.Grid().Limits()[0])
}

func TestVector(t *testing.T) {
	g := grid(t, [3]int{2, 2, 1})
	v := newVector(g, Tag{Name: "velocity"})
	v.Set(0, geom.Vec{3, 4, 0}, 1)
	v.Set(1, geom.Vec{1, 0, 0}, 3)

	x, ok := v.At(0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, geom.Vec{3, 4, 0}, x)

	m := v.Magnitude()
	assert.Equal(t, []float64{5, 1, 0, 0}, m.Dense(0))

	c, err := v.Collapse(1)
	require.NoError(t, err)
	x, ok = c.At(0, 0)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{1.5, 1, 0}, x[:], 1e-12)

	s, err := v.Slice(0, 1)
	require.NoError(t, err)
	_, ok = s.At(0, 0)
	assert.False(t, ok)

	dense := v.Dense()
	assert.True(t, math.IsNaN(dense[0][2]))
}

func TestVectorOutliers(t *testing.T) {
	v := newVector(grid(t, [3]int{10, 1, 1}), Tag{Name: "velocity"})
	for i := 0; i < 9; i++ {
		v.Set(i, geom.Vec{float64(i + 1), 0, 0}, 1)
	}
	v.Set(9, geom.Vec{0, 100, 0}, 1)

	out, n, err := v.Trim(DefaultOutlierRule())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{9, 1, 1}, out.Shape())
	for k := range out.Comp {
		assert.Equal(t, [2]float64{0, 9}, out.Comp[k].Grid().Limits()[0])
	}

	rule := DefaultOutlierRule()
	rule.Mode = Clamp
	out, n, err = v.RemoveOutliers(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	x, ok := out.Cell(9)
	require.True(t, ok)
	assert.Equal(t, 0.0, x[0])
	assert.Greater(t, x[1], 9.0)
	assert.Less(t, x[1], 100.0)
	x, ok = out.Cell(0)
	require.True(t, ok)
	assert.Equal(t, geom.Vec{1, 0, 0}, x)

	y, _ := v.Cell(9)
	assert.Equal(t, geom.Vec{0, 100, 0}, y, "input is left untouched")
}

func TestWriteCSV(t *testing.T) {
	f := New(grid(t, [3]int{2, 1, 1}), Tag{Name: "number"})
	f.Set(0, 3, 1)

	buf := &bytes.Buffer{}
	require.NoError(t, f.WriteCSV(buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "cell,i,j,k,c0,c1,c2,value,weight,defined", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,0,0,0,0.5,0.5,0.5,3,1,true"), lines[1])

	c, err := f.Collapse(0)
	require.NoError(t, err)
	rec := c.Records()[0]
	assert.Equal(t, -1, rec.I)
	assert.True(t, math.IsNaN(rec.C0))
	assert.Equal(t, 3.0, rec.Value)

	v := newVector(f.Grid(), Tag{Name: "velocity"})
	v.Set(1, geom.Vec{1, 2, 3}, 1)
	buf.Reset()
	require.NoError(t, v.WriteCSV(buf))
	assert.Contains(t, buf.String(), "vx,vy,vz")
	assert.Contains(t, buf.String(), ",1,2,3,1,true")
}
