package geom

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testEps = 1e-9

func cube(n int, lo, hi float64) *Grid {
	g, err := NewCartesian([3]int{n, n, n}, [3][2]float64{{lo, hi}, {lo, hi}, {lo, hi}})
	if err != nil {
		panic(err)
	}
	return g
}

func TestIndexRoundTrip(t *testing.T) {
	table := [][]int{{1}, {4}, {2, 3}, {3, 1, 5}, {2, 2, 2}}
	for _, shape := range table {
		idx := NewIndex(shape...)
		coords := []int{}
		seen := map[int]bool{}
		for id := 0; id < idx.Volume; id++ {
			coords = idx.Coords(id, coords)
			flat, ok := idx.FlatCheck(coords)
			require.True(t, ok, "shape %v id %d", shape, id)
			assert.Equal(t, id, flat, "shape %v", shape)
			seen[flat] = true
		}
		assert.Len(t, seen, idx.Volume)
	}
}

func TestIndexRowMajor(t *testing.T) {
	idx := NewIndex(2, 3, 4)
	assert.Equal(t, 0, idx.Flat([]int{0, 0, 0}))
	assert.Equal(t, 1, idx.Flat([]int{0, 0, 1}))
	assert.Equal(t, 4, idx.Flat([]int{0, 1, 0}))
	assert.Equal(t, 12, idx.Flat([]int{1, 0, 0}))
	assert.False(t, idx.BoundsCheck([]int{2, 0, 0}))
	assert.False(t, idx.BoundsCheck([]int{0, -1, 0}))
	assert.False(t, idx.BoundsCheck([]int{0, 0}))
}

func TestZeroDimIndex(t *testing.T) {
	idx := NewIndex()
	assert.Equal(t, 1, idx.Volume)
	assert.Equal(t, 0, idx.Flat(nil))
}

func TestAxisIndex(t *testing.T) {
	a := UniformAxis(0, 10, 5)
	table := []struct {
		c  float64
		i  int
		ok bool
	}{
		{-0.1, -1, false}, {0, 0, true}, {1.99, 0, true}, {2, 1, true},
		{5, 2, true}, {9.999, 4, true}, {10, 4, true}, {10.01, -1, false},
		{math.NaN(), -1, false},
	}
	for _, test := range table {
		i, ok := a.Index(test.c)
		assert.Equal(t, test.ok, ok, "c = %g", test.c)
		assert.Equal(t, test.i, i, "c = %g", test.c)
	}

	sq := SquareAxis(0, 2, 4)
	for i := 0; i < sq.Cells(); i++ {
		j, ok := sq.Index(sq.Center(i))
		assert.True(t, ok)
		assert.Equal(t, i, j)
		j, _ = sq.Index(sq.Edges()[i])
		assert.Equal(t, i, j, "lower edge of cell %d", i)
	}
}

func TestSquareAxisEqualArea(t *testing.T) {
	a := SquareAxis(1, 3, 4)
	edges := a.Edges()
	area := edges[1]*edges[1] - edges[0]*edges[0]
	for i := 1; i < a.Cells(); i++ {
		assert.InDelta(t, area, edges[i+1]*edges[i+1]-edges[i]*edges[i], testEps)
	}
}

func TestCellIDCenterRoundTrip(t *testing.T) {
	grids := []*Grid{cube(3, -1, 2)}
	g, err := NewCartesian([3]int{7, 2, 5}, [3][2]float64{{0, 0.3}, {-5, 5}, {10, 11}})
	require.NoError(t, err)
	grids = append(grids, g)

	for _, g := range grids {
		seen := map[int]bool{}
		for id, center := range g.CellPositions() {
			got, ok := g.CellID(center)
			require.True(t, ok)
			assert.Equal(t, id, got, "grid %s", g)
			seen[got] = true
		}
		assert.Len(t, seen, g.Cells())
	}
}

func TestCellIDRandomPositions(t *testing.T) {
	g := cube(4, 0, 1)
	gen := rand.New(rand.NewSource(11))
	seen := map[int]bool{}
	for i := 0; i < 5000; i++ {
		x := Vec{gen.Float64(), gen.Float64(), gen.Float64()}
		id, ok := g.CellID(x)
		require.True(t, ok)
		require.True(t, id >= 0 && id < g.Cells())
		seen[id] = true

		c := g.Coords(id)
		for k := 0; k < 3; k++ {
			ax := g.Axis(k)
			assert.True(t, x[k] >= ax.Edges()[c[k]] && x[k] < ax.Edges()[c[k]+1])
		}
	}
	assert.Len(t, seen, g.Cells())
}

func TestOctants(t *testing.T) {
	g := cube(2, 0, 100)
	assert.Equal(t, [3]int{2, 2, 2}, g.Shape())
	ids := map[int]bool{}
	for _, x := range []float64{25, 75} {
		for _, y := range []float64{25, 75} {
			for _, z := range []float64{25, 75} {
				id, ok := g.CellID(Vec{x, y, z})
				require.True(t, ok)
				ids[id] = true
			}
		}
	}
	assert.Len(t, ids, 8)

	_, ok := g.CellID(Vec{100.5, 50, 50})
	assert.False(t, ok)
	assert.True(t, g.IsInside(Vec{100, 100, 100}))
	assert.False(t, g.IsInside(Vec{50, -1e-9, 50}))
}

func TestInvalidGeometry(t *testing.T) {
	lim := [3][2]float64{{0, 1}, {0, 1}, {0, 1}}
	table := []struct {
		name   string
		cells  [3]int
		limits [3][2]float64
	}{
		{"zero cells", [3]int{0, 1, 1}, lim},
		{"negative cells", [3]int{1, -2, 1}, lim},
		{"empty extent", [3]int{1, 1, 1}, [3][2]float64{{0, 1}, {1, 1}, {0, 1}}},
		{"reversed extent", [3]int{1, 1, 1}, [3][2]float64{{0, 1}, {0, 1}, {2, 1}}},
		{"nan extent", [3]int{1, 1, 1}, [3][2]float64{{math.NaN(), 1}, {0, 1}, {0, 1}}},
	}
	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			g, err := NewCartesian(test.cells, test.limits)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, ErrInvalidGeometry)
		})
	}

	_, err := NewCylindrical([3]int{1, 1, 1}, [2]float64{}, [3][2]float64{{-1, 1}, {0, 1}, {0, 1}}, RadialUniform)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewCylindrical([3]int{1, 1, 1}, [2]float64{}, [3][2]float64{{0, 1}, {0, 7}, {0, 1}}, RadialUniform)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestCellSize(t *testing.T) {
	g, err := NewCartesianCellSize([3]float64{1, 2, 5}, [3][2]float64{{0, 10}, {0, 10}, {0, 10}})
	require.NoError(t, err)
	assert.Equal(t, [3]int{10, 5, 2}, g.Shape())

	_, err = NewCartesianCellSize([3]float64{1, 100, 1}, [3][2]float64{{0, 10}, {0, 10}, {0, 10}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewCartesianCellSize([3]float64{1, 0, 1}, [3][2]float64{{0, 10}, {0, 10}, {0, 10}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestFromPositions(t *testing.T) {
	xs := []Vec{{1, 2, 3}, {4, -2, 0}, {2, 2, 9}}
	g, err := CartesianFromPositions([3]int{3, 3, 3}, xs)
	require.NoError(t, err)
	assert.Equal(t, [3][2]float64{{1, 4}, {-2, 2}, {0, 9}}, g.Limits())
	for _, x := range xs {
		assert.True(t, g.IsInside(x), "%v", x)
	}

	_, err = CartesianFromPositions([3]int{3, 3, 3}, []Vec{{1, 1, 1}, {2, 1, 2}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = CartesianFromPositions([3]int{3, 3, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestCylindrical(t *testing.T) {
	g, err := NewCylindrical([3]int{2, 4, 1}, [2]float64{1, 1},
		[3][2]float64{{0, 2}, {0, 2 * math.Pi}, {0, 1}}, RadialUniform)
	require.NoError(t, err)

	n := g.Native(Vec{1, 2, 0.5})
	assert.InDelta(t, 1, n[0], testEps)
	assert.InDelta(t, math.Pi/2, n[1], testEps)

	// Negative angles wrap into [0, 2pi).
	n = g.Native(Vec{1, 0, 0.5})
	assert.InDelta(t, 3*math.Pi/2, n[1], testEps)

	id, ok := g.CellID(Vec{1.5, 0.5, 0.5})
	require.True(t, ok)
	assert.Equal(t, [3]int{0, 3, 0}, g.Coords(id))

	assert.False(t, g.IsInside(Vec{4, 1, 0.5}))
	assert.False(t, g.IsInside(Vec{1, 1.5, 2}))

	for id, center := range g.CellPositions() {
		x := g.Geometry().Cartesian(center)
		got, ok := g.CellID(x)
		require.True(t, ok)
		assert.Equal(t, id, got)
	}
}

func TestCylindricalAngularRange(t *testing.T) {
	g, err := NewCylindrical([3]int{1, 2, 1}, [2]float64{0, 0},
		[3][2]float64{{0, 1}, {0, math.Pi / 2}, {0, 1}}, RadialUniform)
	require.NoError(t, err)
	assert.True(t, g.IsInside(Vec{0.5, 0.1, 0.5}))
	assert.False(t, g.IsInside(Vec{-0.5, 0.1, 0.5}))
	assert.False(t, g.IsInside(Vec{0.5, -0.1, 0.5}))
}

func TestCylindricalFromPositions(t *testing.T) {
	xs := []Vec{{1, 0, 0}, {-1, 0, 1}, {0, 1, 2}, {0, -1, 3}, {0.5, 0, 1}}
	g, err := CylindricalFromPositions([3]int{2, 4, 3}, xs, RadialVolume)
	require.NoError(t, err)
	lim := g.Limits()
	assert.InDelta(t, 0.5, lim[0][0], testEps)
	assert.InDelta(t, 1, lim[0][1], testEps)
	assert.Equal(t, [2]float64{0, 3}, lim[2])
	for _, x := range xs {
		assert.True(t, g.IsInside(x), "%v", x)
	}
}

func TestSub(t *testing.T) {
	g := cube(4, 0, 4)
	sub, err := g.Sub([3]int{1, 0, 2}, [3]int{3, 4, 3})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 4, 1}, sub.Shape())
	assert.Equal(t, [3][2]float64{{1, 3}, {0, 4}, {2, 3}}, sub.Limits())

	_, err = g.Sub([3]int{0, 0, 0}, [3]int{5, 1, 1})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestAxisIndexErrors(t *testing.T) {
	g := cube(2, 0, 1)
	_, err := g.AxisIndex(3, 0.5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = g.AxisIndex(0, 1.5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	i, err := g.AxisIndex(1, 0.75)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestDescriptorRoundTrip(t *testing.T) {
	cart, err := NewCartesian([3]int{3, 1, 7}, [3][2]float64{{0.1, 0.7}, {-3, 1e-3}, {1.0 / 3, 2}})
	require.NoError(t, err)
	cyl, err := NewCylindrical([3]int{5, 8, 2}, [2]float64{0.25, -1.0 / 7},
		[3][2]float64{{0.01, 0.3}, {0, 2 * math.Pi}, {0, 0.5}}, RadialVolume)
	require.NoError(t, err)

	cartBig, err := NewCartesian([3]int{7, 3, 3}, [3][2]float64{{0.3, 1.7}, {0, 1}, {-0.1, 0.2}})
	require.NoError(t, err)
	cartSub, err := cartBig.Sub([3]int{2, 0, 1}, [3]int{6, 3, 2})
	require.NoError(t, err)
	cylBig, err := NewCylindrical([3]int{7, 3, 3}, [2]float64{0, 0},
		[3][2]float64{{0.3, 1.7}, {0, 2 * math.Pi}, {0, 1}}, RadialVolume)
	require.NoError(t, err)
	cylSub, err := cylBig.Sub([3]int{2, 1, 0}, [3]int{6, 3, 3})
	require.NoError(t, err)

	for _, g := range []*Grid{cart, cyl, cartSub, cylSub} {
		b, err := EncodeDescriptor(g)
		require.NoError(t, err)
		back, err := DecodeDescriptor(b)
		require.NoError(t, err)
		assert.Equal(t, g.Descriptor(), back.Descriptor())
		assert.True(t, g.Equal(back), "%s", b)

		viaMarshaler, err := yaml.Marshal(g)
		require.NoError(t, err)
		assert.Equal(t, string(b), string(viaMarshaler))
	}

	_, err = DecodeDescriptor([]byte("kind: hexagonal\ncells: [1, 1, 1]\n"))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = DecodeDescriptor([]byte("kind: cylindrical\ncells: [1, 1, 1]\nlimits: [[0, 1], [0, 1], [0, 1]]\n"))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func BenchmarkCellID(b *testing.B) {
	g := cube(100, 0, 1)
	gen := rand.New(rand.NewSource(3))
	xs := make([]Vec, 1024)
	for i := range xs {
		xs[i] = Vec{gen.Float64(), gen.Float64(), gen.Float64()}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.CellID(xs[i%len(xs)])
	}
}
