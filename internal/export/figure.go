// Package export renders stored runs as PNG figures with gonum/plot.
package export

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/remodel/internal/storage"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	DefaultWidth  = 8.0
	DefaultHeight = 5.0
	DefaultDPI    = 150
)

// Series is one named line.
type Series struct {
	Name string
	X, Y []float64
}

// Labels names the columns of the metastasis model.
var Labels = map[string]string{
	"x1":      "osteoclasts",
	"x2":      "osteoblasts",
	"x3":      "tumour cells",
	"u1":      "dose, channel 1",
	"u2":      "dose, channel 2",
	"lambda1": "costate 1",
	"lambda2": "costate 2",
	"lambda3": "costate 3",
}

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)

	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	p.X.Padding = vg.Points(10)
	p.Y.Padding = vg.Points(10)

	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)

	p.X.Tick.Marker = limitedTicker(6, "%.0f")
	p.Y.Tick.Marker = limitedTicker(6, "%.3g")
}

// LinePlot builds a styled plot with one coloured line per series.
func LinePlot(title, xlabel, ylabel string, series ...Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	stylePlot(p)

	for i, s := range series {
		if len(s.X) != len(s.Y) || len(s.X) == 0 {
			return nil, fmt.Errorf("series %q: %d x values, %d y values", s.Name, len(s.X), len(s.Y))
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j].X = s.X[j]
			pts[j].Y = s.Y[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
		line.LineStyle.Width = vg.Points(2)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		if s.Name != "" && len(series) > 1 {
			p.Legend.Add(s.Name, line)
		}
	}
	p.Legend.Top = true
	return p, nil
}

func SavePNG(p *plot.Plot, widthIn, heightIn float64, dpi int, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(dpi),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}

func label(column string) string {
	if l, ok := Labels[column]; ok {
		return l
	}
	return column
}

// Figures writes one PNG per column of a stored run into outDir and returns
// the written paths. A run with a convergence history also gets
// convergence.png.
func Figures(outDir, title string, table *storage.Table, history []float64) ([]string, error) {
	if len(table.Times) == 0 {
		return nil, fmt.Errorf("run %s has no rows", title)
	}

	written := make([]string, 0, len(table.Header)+1)
	for _, col := range table.Header {
		p, err := LinePlot(fmt.Sprintf("%s: %s", title, label(col)), "time (days)", col,
			Series{Name: col, X: table.Times, Y: table.Column(col)})
		if err != nil {
			return written, err
		}
		path := filepath.Join(outDir, col+".png")
		if err := SavePNG(p, DefaultWidth, DefaultHeight, DefaultDPI, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(history) > 0 {
		path := filepath.Join(outDir, "convergence.png")
		if err := Convergence(path, title, history); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// Convergence plots log10 of the sweep error per iteration.
func Convergence(path, title string, history []float64) error {
	xs := make([]float64, 0, len(history))
	ys := make([]float64, 0, len(history))
	for i, e := range history {
		if e > 0 && !math.IsInf(e, 0) {
			xs = append(xs, float64(i+1))
			ys = append(ys, math.Log10(e))
		}
	}
	if len(xs) == 0 {
		return fmt.Errorf("run %s: no positive errors to plot", title)
	}
	p, err := LinePlot(title+": convergence", "iteration", "log10 error", Series{X: xs, Y: ys})
	if err != nil {
		return err
	}
	return SavePNG(p, DefaultWidth, DefaultHeight, DefaultDPI, path)
}

// Overlay compares one column across several runs on a single figure.
func Overlay(path, column string, names []string, tables []*storage.Table) error {
	series := make([]Series, 0, len(tables))
	for i, t := range tables {
		y := t.Column(column)
		if y == nil {
			return fmt.Errorf("run %s has no column %s", names[i], column)
		}
		series = append(series, Series{Name: names[i], X: t.Times, Y: y})
	}
	p, err := LinePlot(label(column)+" ("+strings.Join(names, " vs ")+")", "time (days)", column, series...)
	if err != nil {
		return err
	}
	return SavePNG(p, DefaultWidth, DefaultHeight, DefaultDPI, path)
}
