package forecast

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"StockInsight/internal/model"
)

var (
	actualColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	predictedColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// RenderJob describes one chart. Each Render call builds its own plot, so
// jobs may run concurrently.
type RenderJob struct {
	Title     string
	Actual    model.TimeSeries
	Predicted *model.Bar
}

func toXYs(series model.TimeSeries) plotter.XYs {
	pts := make(plotter.XYs, len(series))
	for i, b := range series {
		pts[i].X = float64(b.Time.Unix())
		pts[i].Y = b.Close
	}
	return pts
}

func (j *RenderJob) build() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = j.Title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Price"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(toXYs(j.Actual))
	if err != nil {
		return nil, fmt.Errorf("actual line: %w", err)
	}
	line.LineStyle.Color = actualColor
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("Actual", line)

	if j.Predicted != nil {
		pt, err := plotter.NewScatter(plotter.XYs{{
			X: float64(j.Predicted.Time.Unix()),
			Y: j.Predicted.Close,
		}})
		if err != nil {
			return nil, fmt.Errorf("predicted point: %w", err)
		}
		pt.GlyphStyle.Color = predictedColor
		pt.GlyphStyle.Shape = draw.CircleGlyph{}
		pt.GlyphStyle.Radius = vg.Points(4)
		p.Add(pt)
		p.Legend.Add("Predicted", pt)
	}
	p.Legend.Top = true
	return p, nil
}

// Render writes the chart as PNG to path. The file is closed on every
// return path; a partially written file is left for the caller to remove.
func (j *RenderJob) Render(path string) (err error) {
	if len(j.Actual) == 0 {
		return fmt.Errorf("render %q: no data", j.Title)
	}
	p, err := j.build()
	if err != nil {
		return fmt.Errorf("render %q: %w", j.Title, err)
	}
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render %q: %w", j.Title, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if _, err := wt.WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
