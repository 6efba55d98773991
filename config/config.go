/*package config reads the ini-style configuration files of the granflow
command.
*/
package config

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
)

const ExampleFile = `[Input]

#######################
# Required Parameters #
#######################

# Whitespace separated table of particle samples, one record per line, with
# the columns: time id type x y z vx vy vz.
File = path/to/samples.txt

[Grid]

# Either cartesian or cylindrical.
Kind = cartesian

# Cell counts along x, y, z (or r, phi, z for cylindrical grids).
NX = 10
NY = 10
NZ = 10

# Extents of a cartesian grid.
XMin = 0
XMax = 1
YMin = 0
YMax = 1
ZMin = 0
ZMax = 1

#######################
# Optional Parameters #
#######################

# Derive the extents from the bounding box of the particles in the window
# instead of the values above.
# FromData = true

# Cell size for cartesian grids. Overrides NX, NY and NZ when positive.
# CellSize = 0.1

# Extents of a cylindrical grid. Angles are in radians and must lie in
# [0, 2 pi]. The axis of the cylinder passes through (CenterX, CenterY).
# RMin = 0
# RMax = 1
# PhiMin = 0
# PhiMax = 6.283185307179586
# CenterX = 0
# CenterY = 0

# Radial spacing of cylindrical grids: uniform (equal widths) or volume
# (equal ring volumes).
# Radial = uniform

[Window]

# Time window to analyze. By default every frame is used.
# Start = 0
# End = 10

[Engine]

# Number of worker goroutines. 0 uses one per CPU.
# Workers = 0
# ChunkSize = 4096
# TimeTolerance = 1e-9

[Occupancy]

# A cell is occupied while it holds more than MinCount particles. Cells
# occupied for less than MinDuration report zero. MinCount is also the
# per-frame particle count a cell needs to take part in mixing indices.
# MinCount = 0
# MinDuration = 0

[Outliers]

# Outlier removal applied to every field before it is written. Vector fields
# are judged by their magnitude. Method is modified-zscore or zscore, Mode is
# undefined or clamp. Crop shrinks each field's grid to the cells that
# survive and writes the cropped grid next to it as <field>.grid.yaml.
# Enabled = false
# Method = modified-zscore
# Threshold = 3.5
# Mode = undefined
# Crop = false

[Output]

# Directory output files are written to.
Dir = path/to/output/dir

# Comma separated list of fields to compute. Supported values are number,
# occupancy, velocity, displacement, concentration, temperature, lacey and
# homogeneity.
Fields = number, velocity

# Species compared by concentration, lacey and homogeneity.
# TypeA = 0
# TypeB = 1

# Minimum velocity magnitude of the cells homogeneity is computed over.
# VelocityThreshold = 0`

type InputConfig struct {
	File string
}

type GridConfig struct {
	Kind       string
	NX, NY, NZ int

	XMin, XMax, YMin, YMax, ZMin, ZMax float64

	RMin, RMax, PhiMin, PhiMax float64
	CenterX, CenterY           float64
	Radial                     string

	CellSize float64
	FromData bool
}

type WindowConfig struct {
	Start, End float64
}

type EngineConfig struct {
	Workers       int
	ChunkSize     int
	TimeTolerance float64
}

type OccupancyConfig struct {
	MinCount    int
	MinDuration float64
}

type OutliersConfig struct {
	Enabled   bool
	Method    string
	Threshold float64
	Mode      string
	Crop      bool
}

type OutputConfig struct {
	Dir               string
	Fields            string
	TypeA, TypeB      int
	VelocityThreshold float64
}

// Wrapper holds every section of a configuration file.
type Wrapper struct {
	Input     InputConfig
	Grid      GridConfig
	Window    WindowConfig
	Engine    EngineConfig
	Occupancy OccupancyConfig
	Outliers  OutliersConfig
	Output    OutputConfig
}

// DefaultWrapper returns a Wrapper holding the default value of every
// optional parameter.
func DefaultWrapper() *Wrapper {
	w := &Wrapper{}
	w.Grid.Kind = "cartesian"
	w.Grid.Radial = "uniform"
	w.Grid.PhiMax = 2 * math.Pi
	w.Window.Start, w.Window.End = math.Inf(-1), math.Inf(+1)
	w.Engine.ChunkSize = field.DefaultOptions().ChunkSize
	w.Engine.TimeTolerance = field.DefaultOptions().TimeTolerance
	rule := field.DefaultOutlierRule()
	w.Outliers.Method = rule.Method.String()
	w.Outliers.Threshold = rule.Threshold
	w.Outliers.Mode = rule.Mode.String()
	w.Output.Fields = "number"
	w.Output.TypeA, w.Output.TypeB = 0, 1
	return w
}

// ReadFile parses the configuration file fname on top of the defaults and
// checks it.
func ReadFile(fname string) (*Wrapper, error) {
	w := DefaultWrapper()
	if err := gcfg.ReadFileInto(w, fname); err != nil {
		return nil, err
	}
	if err := w.CheckInit(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return w, nil
}

// ReadString is ReadFile for a configuration held in memory.
func ReadString(s string) (*Wrapper, error) {
	w := DefaultWrapper()
	if err := gcfg.ReadStringInto(w, s); err != nil {
		return nil, err
	}
	if err := w.CheckInit(); err != nil {
		return nil, err
	}
	return w, nil
}

// CheckInit validates every section.
func (w *Wrapper) CheckInit() error {
	if w.Input.File == "" {
		return fmt.Errorf("Need to specify an input File in [Input].")
	}
	if err := w.Grid.CheckInit(); err != nil {
		return err
	}
	if w.Window.End < w.Window.Start {
		return fmt.Errorf(
			"Window End, %g, is before Start, %g.", w.Window.End, w.Window.Start,
		)
	}
	if w.Engine.Workers < 0 {
		return fmt.Errorf("Engine given a negative Workers count, %d.", w.Engine.Workers)
	} else if w.Engine.ChunkSize < 1 {
		return fmt.Errorf("Engine ChunkSize must be positive, but is %d.", w.Engine.ChunkSize)
	} else if w.Engine.TimeTolerance < 0 {
		return fmt.Errorf(
			"Engine given a negative TimeTolerance, %g.", w.Engine.TimeTolerance,
		)
	}
	if w.Occupancy.MinCount < 0 {
		return fmt.Errorf("Occupancy given a negative MinCount, %d.", w.Occupancy.MinCount)
	} else if w.Occupancy.MinDuration < 0 {
		return fmt.Errorf(
			"Occupancy given a negative MinDuration, %g.", w.Occupancy.MinDuration,
		)
	}
	if _, err := w.OutlierRule(); err != nil {
		return err
	}
	if w.Output.Dir == "" {
		return fmt.Errorf("Need to specify an output Dir in [Output].")
	}
	if _, err := w.Output.FieldNames(); err != nil {
		return err
	}
	return nil
}

// CheckInit validates the grid section.
func (g *GridConfig) CheckInit() error {
	kind, err := geom.ParseKind(g.Kind)
	if err != nil {
		return err
	}
	if _, err := geom.ParseRadialMode(g.Radial); err != nil {
		return err
	}
	if g.CellSize < 0 {
		return fmt.Errorf("Grid given a negative CellSize, %g.", g.CellSize)
	}
	if g.CellSize > 0 && kind != geom.Cartesian {
		return fmt.Errorf("Grid CellSize is only supported for cartesian grids.")
	}
	if g.CellSize == 0 && (g.NX < 1 || g.NY < 1 || g.NZ < 1) {
		return fmt.Errorf(
			"Grid cell counts must be positive, but are (%d, %d, %d).",
			g.NX, g.NY, g.NZ,
		)
	}
	return nil
}

// Options returns the engine options the configuration describes.
func (w *Wrapper) Options() field.Options {
	return field.Options{
		Workers:       w.Engine.Workers,
		ChunkSize:     w.Engine.ChunkSize,
		MinCount:      w.Occupancy.MinCount,
		MinDuration:   w.Occupancy.MinDuration,
		TimeTolerance: w.Engine.TimeTolerance,
	}
}

// OutlierRule returns the outlier rule the configuration describes.
func (w *Wrapper) OutlierRule() (field.OutlierRule, error) {
	method, err := field.ParseOutlierMethod(w.Outliers.Method)
	if err != nil {
		return field.OutlierRule{}, err
	}
	mode, err := field.ParseOutlierMode(w.Outliers.Mode)
	if err != nil {
		return field.OutlierRule{}, err
	}
	if !(w.Outliers.Threshold > 0) {
		return field.OutlierRule{}, fmt.Errorf(
			"Outliers Threshold must be positive, but is %g.", w.Outliers.Threshold,
		)
	}
	return field.OutlierRule{Method: method, Threshold: w.Outliers.Threshold, Mode: mode}, nil
}

// TimeWindow returns the configured window clipped to the span of ds.
func (w *Wrapper) TimeWindow(ds *dataset.Memory) dataset.Window {
	lo, hi := ds.Span()
	return dataset.Window{Start: math.Max(lo, w.Window.Start), End: math.Min(hi, w.Window.End)}
}

// Grid builds the configured grid. Grids derived from data take their
// extents from xs.
func (g *GridConfig) Grid(xs []geom.Vec) (*geom.Grid, error) {
	kind, err := geom.ParseKind(g.Kind)
	if err != nil {
		return nil, err
	}
	mode, err := geom.ParseRadialMode(g.Radial)
	if err != nil {
		return nil, err
	}
	cells := [3]int{g.NX, g.NY, g.NZ}

	switch {
	case kind == geom.Cylindrical && g.FromData:
		return geom.CylindricalFromPositions(cells, xs, mode)
	case kind == geom.Cylindrical:
		return geom.NewCylindrical(cells, [2]float64{g.CenterX, g.CenterY},
			[3][2]float64{{g.RMin, g.RMax}, {g.PhiMin, g.PhiMax}, {g.ZMin, g.ZMax}}, mode)
	}

	limits := [3][2]float64{{g.XMin, g.XMax}, {g.YMin, g.YMax}, {g.ZMin, g.ZMax}}
	if g.FromData {
		if g.CellSize == 0 {
			return geom.CartesianFromPositions(cells, xs)
		}
		min, max, ok := geom.MinMax(xs)
		if !ok {
			return nil, fmt.Errorf("%w: no particles to derive the grid extents from",
				geom.ErrInvalidGeometry)
		}
		for i := range limits {
			limits[i] = [2]float64{min[i], max[i]}
		}
	}
	if g.CellSize > 0 {
		size := [3]float64{g.CellSize, g.CellSize, g.CellSize}
		return geom.NewCartesianCellSize(size, limits)
	}
	return geom.NewCartesian(cells, limits)
}

var fieldNames = map[string]bool{
	"number": true, "occupancy": true, "velocity": true, "displacement": true,
	"concentration": true, "temperature": true, "lacey": true, "homogeneity": true,
}

// FieldNames returns the parsed Fields list.
func (o *OutputConfig) FieldNames() ([]string, error) {
	names := []string{}
	for _, s := range strings.Split(o.Fields, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !fieldNames[s] {
			return nil, fmt.Errorf("Unrecognized field '%s' in Output Fields.", s)
		}
		names = append(names, s)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("Need to specify at least one of Output Fields.")
	}
	return names, nil
}
