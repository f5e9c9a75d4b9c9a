// Package plots renders collected metric payloads to image files.
package plots

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/tsawler/go-basis/training"
)

// Formats are the image formats written for every figure.
var Formats = []string{"png", "svg"}

const (
	figureWidth  = 8 * vg.Inch
	figureHeight = 6 * vg.Inch
)

// Render draws one payload and writes it to basePath with one file per
// format (basePath.png, basePath.svg).
func Render(data training.PlotData, basePath string) error {
	p := plot.New()
	p.Title.Text = data.Title
	p.X.Label.Text = data.Config.XAxisLabel
	p.Y.Label.Text = data.Config.YAxisLabel
	p.Add(plotter.NewGrid())

	if data.Config.YAxisScale == "log" {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	if data.Config.XAxisScale == "log" {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	for i, series := range data.Series {
		pts := make(plotter.XYs, len(series.Data))
		for j, d := range series.Data {
			pts[j].X = d.X
			pts[j].Y = d.Y
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("series %s: %v", series.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)

		if data.Config.ShowLegend {
			p.Legend.Add(series.Name, line)
		}
	}
	if data.Config.ShowLegend {
		p.Legend.Top = true
	}

	for _, format := range Formats {
		path := fmt.Sprintf("%s.%s", basePath, format)
		if err := p.Save(figureWidth, figureHeight, path); err != nil {
			return fmt.Errorf("failed to save %s: %v", path, err)
		}
	}
	return nil
}

// RenderAll draws several payloads, pairing each with its base path.
func RenderAll(payloads map[string]training.PlotData) error {
	for basePath, data := range payloads {
		if err := Render(data, basePath); err != nil {
			return err
		}
	}
	return nil
}
