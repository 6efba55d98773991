package geom

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Descriptor is the serializable description of a Grid: everything needed to
// rebuild it exactly.
type Descriptor struct {
	Kind   string        `yaml:"kind"`
	Cells  [3]int        `yaml:"cells"`
	Limits [3][2]float64 `yaml:"limits"`
	Center *[2]float64   `yaml:"center,omitempty"`
	Radial string        `yaml:"radial,omitempty"`
}

// Descriptor returns the descriptor of g.
func (g *Grid) Descriptor() Descriptor {
	d := Descriptor{
		Kind:   g.Kind().String(),
		Cells:  g.Shape(),
		Limits: g.Limits(),
	}
	if cg, ok := g.geom.(CylindricalGeometry); ok {
		center := cg.Center
		d.Center = &center
		d.Radial = g.radial.String()
	}
	return d
}

// Grid builds the grid described by d.
func (d Descriptor) Grid() (*Grid, error) {
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case Cylindrical:
		if d.Center == nil {
			return nil, fmt.Errorf("%w: cylindrical descriptor has no center",
				ErrInvalidGeometry)
		}
		mode, err := ParseRadialMode(d.Radial)
		if err != nil {
			return nil, err
		}
		return NewCylindrical(d.Cells, *d.Center, d.Limits, mode)
	default:
		return NewCartesian(d.Cells, d.Limits)
	}
}

// MarshalYAML encodes the descriptor of g.
func (g *Grid) MarshalYAML() (interface{}, error) {
	return g.Descriptor(), nil
}

// EncodeDescriptor writes the descriptor of g as YAML.
func EncodeDescriptor(g *Grid) ([]byte, error) {
	return yaml.Marshal(g.Descriptor())
}

// DecodeDescriptor rebuilds a grid from YAML written by EncodeDescriptor.
func DecodeDescriptor(b []byte) (*Grid, error) {
	d := Descriptor{}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decoding grid descriptor: %w", err)
	}
	return d.Grid()
}
