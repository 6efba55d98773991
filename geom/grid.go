package geom

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidGeometry is returned when a grid cannot be built from the
	// requested extents or cell counts.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrIndexOutOfRange is returned when an axis or cell index lies outside
	// the shape of a grid.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Kind names the coordinate system of a Grid.
type Kind int

const (
	Cartesian Kind = iota
	Cylindrical
)

func (k Kind) String() string {
	switch k {
	case Cartesian:
		return "cartesian"
	case Cylindrical:
		return "cylindrical"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a geometry name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cartesian", "":
		return Cartesian, nil
	case "cylindrical":
		return Cylindrical, nil
	}
	return 0, fmt.Errorf("%w: unknown grid kind '%s'", ErrInvalidGeometry, s)
}

// RadialMode decides how the radial axis of a cylindrical grid is split.
type RadialMode int

const (
	// RadialUniform gives every ring the same radial width.
	RadialUniform RadialMode = iota
	// RadialVolume gives every ring the same volume.
	RadialVolume
)

func (m RadialMode) String() string {
	if m == RadialVolume {
		return "volume"
	}
	return "uniform"
}

// ParseRadialMode converts a radial mode name into a RadialMode.
func ParseRadialMode(s string) (RadialMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uniform", "":
		return RadialUniform, nil
	case "volume":
		return RadialVolume, nil
	}
	return 0, fmt.Errorf("%w: unknown radial mode '%s'", ErrInvalidGeometry, s)
}

// Geometry converts between Cartesian positions and the native coordinates a
// Grid is discretized in: (x, y, z) or (r, phi, z).
type Geometry interface {
	Kind() Kind
	Native(x Vec) Vec
	Cartesian(n Vec) Vec
}

// CartesianGeometry is the identity transform.
type CartesianGeometry struct{}

func (CartesianGeometry) Kind() Kind          { return Cartesian }
func (CartesianGeometry) Native(x Vec) Vec    { return x }
func (CartesianGeometry) Cartesian(n Vec) Vec { return n }

// CylindricalGeometry maps positions onto (r, phi, z) around a vertical axis
// through Center. phi is reported in [0, 2 pi).
type CylindricalGeometry struct {
	Center [2]float64
}

func (CylindricalGeometry) Kind() Kind { return Cylindrical }

func (cg CylindricalGeometry) Native(x Vec) Vec {
	dx, dy := x[0]-cg.Center[0], x[1]-cg.Center[1]
	phi := math.Atan2(dy, dx)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	if phi >= 2*math.Pi {
		phi = 0
	}
	return Vec{math.Hypot(dx, dy), phi, x[2]}
}

func (cg CylindricalGeometry) Cartesian(n Vec) Vec {
	sin, cos := math.Sincos(n[1])
	return Vec{cg.Center[0] + n[0]*cos, cg.Center[1] + n[0]*sin, n[2]}
}

// Grid is a three dimensional discretization of space. Every cell has a flat
// id in [0, Cells()); the mapping from per-axis indices to flat ids is
// row-major in the native axis order (x|r, y|phi, z).
type Grid struct {
	geom   Geometry
	axes   [3]Axis
	radial RadialMode
	index  *Index
}

func newGrid(g Geometry, axes [3]Axis, radial RadialMode) *Grid {
	return &Grid{
		geom:   g,
		axes:   axes,
		radial: radial,
		index:  NewIndex(axes[0].Cells(), axes[1].Cells(), axes[2].Cells()),
	}
}

// NewCartesian returns a grid with the given cell counts spanning
// limits[i][0] to limits[i][1] along each axis.
func NewCartesian(cells [3]int, limits [3][2]float64) (*Grid, error) {
	if err := checkCells(cells); err != nil {
		return nil, err
	}
	if err := checkLimits(limits, cellsNames[Cartesian]); err != nil {
		return nil, err
	}

	var axes [3]Axis
	for i := range axes {
		axes[i] = UniformAxis(limits[i][0], limits[i][1], cells[i])
	}
	return newGrid(CartesianGeometry{}, axes, RadialUniform), nil
}

// NewCartesianCellSize returns a grid spanning limits whose cell counts are
// derived from the requested per-axis cell size. The limits are kept and the
// cell size rounded to fit them.
func NewCartesianCellSize(size [3]float64, limits [3][2]float64) (*Grid, error) {
	if err := checkLimits(limits, cellsNames[Cartesian]); err != nil {
		return nil, err
	}
	cells, err := cellsFromSize(size, limits)
	if err != nil {
		return nil, err
	}
	return NewCartesian(cells, limits)
}

// NewCylindrical returns a cylindrical grid around a vertical axis through
// center. limits holds the (r, phi, z) extents, with phi in radians.
func NewCylindrical(
	cells [3]int, center [2]float64, limits [3][2]float64, mode RadialMode,
) (*Grid, error) {
	if err := checkCells(cells); err != nil {
		return nil, err
	}
	if err := checkLimits(limits, cellsNames[Cylindrical]); err != nil {
		return nil, err
	}
	if math.IsNaN(center[0]) || math.IsNaN(center[1]) ||
		math.IsInf(center[0], 0) || math.IsInf(center[1], 0) {
		return nil, fmt.Errorf("%w: cylinder center %v is not finite",
			ErrInvalidGeometry, center)
	}
	if limits[0][0] < 0 {
		return nil, fmt.Errorf("%w: minimum radius %g is negative",
			ErrInvalidGeometry, limits[0][0])
	}
	if limits[1][0] < 0 || limits[1][1] > 2*math.Pi {
		return nil, fmt.Errorf("%w: angular range [%g, %g) is not inside [0, 2pi)",
			ErrInvalidGeometry, limits[1][0], limits[1][1])
	}

	var axes [3]Axis
	switch mode {
	case RadialVolume:
		axes[0] = SquareAxis(limits[0][0], limits[0][1], cells[0])
	default:
		axes[0] = UniformAxis(limits[0][0], limits[0][1], cells[0])
	}
	axes[1] = UniformAxis(limits[1][0], limits[1][1], cells[1])
	axes[2] = UniformAxis(limits[2][0], limits[2][1], cells[2])

	return newGrid(CylindricalGeometry{center}, axes, mode), nil
}

// CartesianFromPositions returns a grid with the given cell counts whose
// extents are the bounding box of xs.
func CartesianFromPositions(cells [3]int, xs []Vec) (*Grid, error) {
	min, max, ok := MinMax(xs)
	if !ok {
		return nil, fmt.Errorf("%w: no positions to derive extents from",
			ErrInvalidGeometry)
	}
	var limits [3][2]float64
	for i := range limits {
		limits[i] = [2]float64{min[i], max[i]}
	}
	return NewCartesian(cells, limits)
}

// CylindricalFromPositions returns a cylindrical grid whose axis passes
// through the center of the x-y bounding box of xs and whose extents are the
// bounding annulus, angular range and height of xs.
func CylindricalFromPositions(
	cells [3]int, xs []Vec, mode RadialMode,
) (*Grid, error) {
	min, max, ok := MinMax(xs)
	if !ok {
		return nil, fmt.Errorf("%w: no positions to derive extents from",
			ErrInvalidGeometry)
	}
	center := [2]float64{(min[0] + max[0]) / 2, (min[1] + max[1]) / 2}
	cg := CylindricalGeometry{center}

	ns := make([]Vec, 0, len(xs))
	for _, x := range xs {
		if !x.IsNaN() {
			ns = append(ns, cg.Native(x))
		}
	}
	nMin, nMax, _ := MinMax(ns)

	var limits [3][2]float64
	for i := range limits {
		limits[i] = [2]float64{nMin[i], nMax[i]}
	}
	return NewCylindrical(cells, center, limits, mode)
}

var cellsNames = map[Kind][3]string{
	Cartesian:   {"x", "y", "z"},
	Cylindrical: {"r", "phi", "z"},
}

func checkCells(cells [3]int) error {
	for i, n := range cells {
		if n < 1 {
			return fmt.Errorf("%w: axis %d has %d cells, need at least one",
				ErrInvalidGeometry, i, n)
		}
	}
	return nil
}

func checkLimits(limits [3][2]float64, names [3]string) error {
	for i, lim := range limits {
		for _, x := range lim {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: %s limits %v are not finite",
					ErrInvalidGeometry, names[i], lim)
			}
		}
		if lim[1] <= lim[0] {
			return fmt.Errorf("%w: %s extent [%g, %g] is empty",
				ErrInvalidGeometry, names[i], lim[0], lim[1])
		}
	}
	return nil
}

func cellsFromSize(size [3]float64, limits [3][2]float64) ([3]int, error) {
	var cells [3]int
	for i := range cells {
		if !(size[i] > 0) || math.IsInf(size[i], 0) {
			return cells, fmt.Errorf("%w: cell size %g along axis %d must be positive",
				ErrInvalidGeometry, size[i], i)
		}
		cells[i] = int(math.Round((limits[i][1] - limits[i][0]) / size[i]))
		if cells[i] < 1 {
			return cells, fmt.Errorf("%w: cell size %g along axis %d is larger than the extent",
				ErrInvalidGeometry, size[i], i)
		}
	}
	return cells, nil
}

func (g *Grid) Kind() Kind         { return g.geom.Kind() }
func (g *Grid) Geometry() Geometry { return g.geom }
func (g *Grid) Radial() RadialMode { return g.radial }
func (g *Grid) Index() *Index      { return g.index }
func (g *Grid) Cells() int         { return g.index.Volume }
func (g *Grid) Axis(i int) Axis    { return g.axes[i] }

// AxisName returns the name of a native axis, e.g. "x" or "phi".
func (g *Grid) AxisName(i int) string { return cellsNames[g.Kind()][i] }

// Shape returns the per-axis cell counts.
func (g *Grid) Shape() [3]int {
	return [3]int{g.axes[0].Cells(), g.axes[1].Cells(), g.axes[2].Cells()}
}

// Limits returns the per-axis extents in native coordinates.
func (g *Grid) Limits() [3][2]float64 {
	var out [3][2]float64
	for i := range out {
		out[i] = [2]float64{g.axes[i].Min(), g.axes[i].Max()}
	}
	return out
}

// Native converts a Cartesian position into the grid's coordinates.
func (g *Grid) Native(x Vec) Vec { return g.geom.Native(x) }

// IsInside returns true if x lies within the extents of the grid.
func (g *Grid) IsInside(x Vec) bool {
	_, ok := g.CellID(x)
	return ok
}

// CellID returns the flat id of the cell containing the Cartesian position x
// and true, or false if x is outside the grid.
func (g *Grid) CellID(x Vec) (int, bool) {
	return g.NativeCellID(g.geom.Native(x))
}

// NativeCellID is CellID for a position already in native coordinates.
func (g *Grid) NativeCellID(n Vec) (int, bool) {
	var coords [3]int
	for i := range coords {
		c, ok := g.axes[i].Index(n[i])
		if !ok {
			return -1, false
		}
		coords[i] = c
	}
	return g.index.Flat(coords[:]), true
}

// AxisIndex returns the index of the cell containing the native coordinate c
// along axis.
func (g *Grid) AxisIndex(axis int, c float64) (int, error) {
	if axis < 0 || axis > 2 {
		return -1, fmt.Errorf("%w: axis %d of a 3D grid", ErrIndexOutOfRange, axis)
	}
	i, ok := g.axes[axis].Index(c)
	if !ok {
		return -1, fmt.Errorf("%w: %s = %g outside [%g, %g]", ErrIndexOutOfRange,
			g.AxisName(axis), c, g.axes[axis].Min(), g.axes[axis].Max())
	}
	return i, nil
}

// Coords returns the per-axis indices of a flat cell id.
func (g *Grid) Coords(id int) [3]int {
	var out [3]int
	g.index.Coords(id, out[:])
	return out
}

// CellCenter returns the center of a cell in native coordinates.
func (g *Grid) CellCenter(id int) Vec {
	c := g.Coords(id)
	return Vec{g.axes[0].Center(c[0]), g.axes[1].Center(c[1]), g.axes[2].Center(c[2])}
}

// CellPositions returns the native center of every cell, indexed by flat id.
func (g *Grid) CellPositions() []Vec {
	out := make([]Vec, g.Cells())
	for id := range out {
		out[id] = g.CellCenter(id)
	}
	return out
}

// Sub returns the grid restricted to the cells lo[i] <= index < hi[i].
func (g *Grid) Sub(lo, hi [3]int) (*Grid, error) {
	var axes [3]Axis
	for i := range axes {
		if lo[i] < 0 || hi[i] > g.axes[i].Cells() || lo[i] >= hi[i] {
			return nil, fmt.Errorf("%w: cells [%d, %d) along %s of %d",
				ErrIndexOutOfRange, lo[i], hi[i], g.AxisName(i), g.axes[i].Cells())
		}
		axes[i] = g.axes[i].Sub(lo[i], hi[i])
	}
	return newGrid(g.geom, axes, g.radial), nil
}

// Equal returns true if both grids discretize space identically.
func (g *Grid) Equal(other *Grid) bool {
	if g == other {
		return true
	}
	if g.geom != other.geom || g.radial != other.radial {
		return false
	}
	for i := range g.axes {
		a, b := g.axes[i].edges, other.axes[i].edges
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j] != b[j] {
				return false
			}
		}
	}
	return true
}

func (g *Grid) String() string {
	lim := g.Limits()
	return fmt.Sprintf("%s grid %v: %s %v, %s %v, %s %v", g.Kind(), g.Shape(),
		g.AxisName(0), lim[0], g.AxisName(1), lim[1], g.AxisName(2), lim[2])
}
