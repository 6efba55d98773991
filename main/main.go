package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/phil-mansfield/granflow"
	"github.com/phil-mansfield/granflow/config"
	"github.com/phil-mansfield/granflow/dataset"
	"github.com/phil-mansfield/granflow/field"
	"github.com/phil-mansfield/granflow/geom"
)

func main() {
	var (
		analyze, exampleConfig string
		verbose                bool
	)
	vars := map[string]*string{
		"Analyze":       &analyze,
		"ExampleConfig": &exampleConfig,
	}

	flag.StringVar(
		&analyze, "Analyze", "",
		"Configuration file for [Analyze] mode.",
	)
	flag.StringVar(
		&exampleConfig, "ExampleConfig", "",
		"Prints an example configuration file of the specified type to "+
			"stdout. The only accepted argument is 'Analyze'.",
	)
	flag.BoolVar(&verbose, "Verbose", false, "Log every query.")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	modeName, err := getModeName(vars)
	if err != nil {
		fatal(log, err)
	}

	switch modeName {
	case "Analyze":
		wrap, err := config.ReadFile(analyze)
		if err != nil {
			fatal(log, err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := analyzeMain(ctx, wrap, log); err != nil {
			stop()
			fatal(log, err)
		}
	case "ExampleConfig":
		switch exampleConfig {
		case "Analyze":
			fmt.Println(config.ExampleFile)
		default:
			fatal(log, fmt.Errorf(
				"Unrecognized 'ExampleConfig' argument. The only recognized "+
					"argument is 'Analyze'.",
			))
		}
	default:
		panic("Impossible")
	}
}

func fatal(log *slog.Logger, err error) {
	log.Error(err.Error())
	os.Exit(1)
}

func getModeName(vars map[string]*string) (string, error) {
	setNames := []string{}
	for name, varPtr := range vars {
		if *varPtr != "" {
			setNames = append(setNames, name)
		}
	}

	if len(setNames) == 0 {
		return "", fmt.Errorf("No flags have been set.")
	}
	if len(setNames) > 1 {
		return "", fmt.Errorf(
			"The following flags were set: %s, but granflow only accepts "+
				"one mode flag at a time.",
			strings.Join(setNames, ", "),
		)
	}
	return setNames[0], nil
}

func analyzeMain(ctx context.Context, wrap *config.Wrapper, log *slog.Logger) error {
	ds, err := readSamples(wrap.Input.File)
	if err != nil {
		return err
	}
	w := wrap.TimeWindow(ds)
	log.Info("read samples", "file", wrap.Input.File,
		"frames", ds.Len(), "window", w.String())

	g, err := wrap.Grid.Grid(dataset.Positions(ds, w, dataset.All))
	if err != nil {
		return err
	}
	rule, err := wrap.OutlierRule()
	if err != nil {
		return err
	}
	names, err := wrap.Output.FieldNames()
	if err != nil {
		return err
	}

	a := granflow.New(ds, granflow.WithOptions(wrap.Options()), granflow.WithLogger(log))
	if err := a.SelectWindow(w.Start, w.End); err != nil {
		return err
	}

	if err := os.MkdirAll(wrap.Output.Dir, 0755); err != nil {
		return err
	}
	desc, err := geom.EncodeDescriptor(g)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath(wrap, "grid.yaml"), desc, 0644); err != nil {
		return err
	}

	out := &output{a: a, g: g, wrap: wrap, rule: rule, log: log}
	for _, name := range names {
		if err := out.write(ctx, name); err != nil {
			return fmt.Errorf("computing %s: %w", name, err)
		}
	}
	return nil
}

func outPath(wrap *config.Wrapper, name string) string {
	return filepath.Join(wrap.Output.Dir, name)
}

// output computes one configured field and writes it to the output
// directory.
type output struct {
	a    *granflow.Analyzer
	g    *geom.Grid
	wrap *config.Wrapper
	rule field.OutlierRule
	log  *slog.Logger
}

// mixingRecord is the whole-window row written for a mixing index.
type mixingRecord struct {
	Index     float64 `csv:"index"`
	Mixing    float64 `csv:"mixing"`
	S2        float64 `csv:"s2"`
	P         float64 `csv:"p"`
	Cells     int     `csv:"cells"`
	MeanCount float64 `csv:"mean_count"`
}

func (o *output) write(ctx context.Context, name string) error {
	sel := dataset.All
	a, b := o.wrap.Output.TypeA, o.wrap.Output.TypeB

	var (
		f   *field.Field
		v   *field.Vector
		err error
	)
	switch name {
	case "number":
		f, err = o.a.NumberField(ctx, o.g, sel, true)
	case "occupancy":
		f, err = o.a.OccupancyField(ctx, o.g, sel)
	case "concentration":
		f, err = o.a.ConcentrationField(ctx, o.g, sel, a, b)
	case "temperature":
		f, err = o.a.GranularTemperature(ctx, o.g, sel)
	case "velocity":
		v, err = o.a.VectorField(ctx, o.g, sel, field.Velocity)
	case "displacement":
		v, err = o.a.VectorField(ctx, o.g, sel, field.Displacement)
	case "lacey":
		return o.lacey(ctx, sel, a, b)
	case "homogeneity":
		res, err := o.a.Homogeneity(ctx, o.g, sel, a, b, o.wrap.Output.VelocityThreshold)
		if err != nil {
			return err
		}
		o.log.Info("mixing index", "result", res)
		recs := []mixingRecord{{res.Index, res.Mixing, res.S2, res.P, res.Cells, res.MeanCount}}
		return o.csv(name, func(w io.Writer) error { return gocsv.Marshal(&recs, w) })
	default:
		return fmt.Errorf("unknown field '%s'", name)
	}
	if err != nil {
		return err
	}

	if v != nil {
		if o.wrap.Outliers.Enabled {
			if v, err = o.vectorOutliers(name, v); err != nil {
				return err
			}
		}
		return o.csv(name, v.WriteCSV)
	}
	if o.wrap.Outliers.Enabled {
		if f, err = o.scalarOutliers(name, f); err != nil {
			return err
		}
	}
	return o.csv(name, f.WriteCSV)
}

func (o *output) scalarOutliers(name string, f *field.Field) (*field.Field, error) {
	var (
		n   int
		err error
	)
	if o.wrap.Outliers.Crop {
		f, n, err = f.Trim(o.rule)
	} else {
		f, n, err = f.RemoveOutliers(o.rule)
	}
	if err != nil {
		return nil, err
	}
	o.log.Info("removed outliers", "field", name, "cells", n, "rule", o.rule.String())
	return f, o.croppedGrid(name, f.Grid())
}

func (o *output) vectorOutliers(name string, v *field.Vector) (*field.Vector, error) {
	var (
		n   int
		err error
	)
	if o.wrap.Outliers.Crop {
		v, n, err = v.Trim(o.rule)
	} else {
		v, n, err = v.RemoveOutliers(o.rule)
	}
	if err != nil {
		return nil, err
	}
	o.log.Info("removed outliers", "field", name, "cells", n, "rule", o.rule.String())
	return v, o.croppedGrid(name, v.Grid())
}

// croppedGrid writes the descriptor of a field's grid when cropping has made
// it differ from the analysis grid.
func (o *output) croppedGrid(name string, g *geom.Grid) error {
	if !o.wrap.Outliers.Crop || g.Equal(o.g) {
		return nil
	}
	desc, err := geom.EncodeDescriptor(g)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath(o.wrap, name+".grid.yaml"), desc, 0644)
}

func (o *output) lacey(ctx context.Context, sel dataset.Selector, a, b int) error {
	res, err := o.a.Lacey(ctx, o.g, sel, a, b)
	if err != nil {
		return err
	}
	o.log.Info("mixing index", "result", res)

	series, err := o.a.LaceySeries(ctx, o.g, sel, a, b)
	if err != nil {
		return err
	}
	return o.csv("lacey", func(w io.Writer) error { return gocsv.Marshal(&series, w) })
}

func (o *output) csv(name string, write func(w io.Writer) error) error {
	fname := outPath(o.wrap, name+".csv")
	file, err := os.Create(fname)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	o.log.Debug("wrote", "file", fname)
	return file.Close()
}
