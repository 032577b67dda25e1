// Package chart renders the forecast PNG stored next to each completed job.
package chart

import (
	"bytes"
	"errors"
	"image/color"
	"math"
	"os"
	"time"

	"github.com/soltixdb/forecaster/internal/downsampling"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoData is returned when there is no history to draw.
var ErrNoData = errors.New("chart: no historical data")

const (
	width  = 12 * vg.Inch
	height = 6 * vg.Inch
)

var (
	historyColor  = color.RGBA{B: 255, A: 255}
	forecastColor = color.RGBA{R: 255, A: 255}
	bandColor     = color.RGBA{R: 255, A: 77}
	dividerColor  = color.RGBA{R: 128, G: 128, B: 128, A: 180}
)

// Data is one job's history and forecast. Lower and Upper are optional.
type Data struct {
	Times    []time.Time
	Values   []float64
	Dates    []time.Time
	Forecast []float64
	Lower    []float64
	Upper    []float64
}

// Render draws the chart as PNG. Histories longer than maxPoints are
// downsampled; maxPoints <= 0 draws every point.
func Render(data Data, maxPoints int) ([]byte, error) {
	if len(data.Times) == 0 || len(data.Times) != len(data.Values) {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Time Series Forecast"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Value"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	times, values := data.Times, data.Values
	if maxPoints > 0 {
		times, values = downsampling.Apply(times, values, downsampling.ModeAuto, maxPoints)
	}
	history, err := plotter.NewLine(xys(times, values))
	if err != nil {
		return nil, err
	}
	history.LineStyle.Width = vg.Points(2)
	history.LineStyle.Color = historyColor
	p.Add(history)
	p.Legend.Add("Historical", history)

	if len(data.Forecast) > 0 && len(data.Dates) == len(data.Forecast) {
		fc, err := plotter.NewLine(xys(data.Dates, data.Forecast))
		if err != nil {
			return nil, err
		}
		fc.LineStyle.Width = vg.Points(2)
		fc.LineStyle.Color = forecastColor
		fc.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		p.Add(fc)
		p.Legend.Add("Forecast", fc)

		if len(data.Lower) == len(data.Forecast) && len(data.Upper) == len(data.Forecast) {
			band, err := plotter.NewPolygon(bandOutline(data.Dates, data.Lower, data.Upper))
			if err != nil {
				return nil, err
			}
			band.Color = bandColor
			band.LineStyle.Width = 0
			p.Add(band)
			p.Legend.Add("Confidence Interval", band)
		}
	}

	lo, hi := valueRange(values, data.Forecast, data.Lower, data.Upper)
	last := float64(data.Times[len(data.Times)-1].Unix())
	divider, err := plotter.NewLine(plotter.XYs{{X: last, Y: lo}, {X: last, Y: hi}})
	if err != nil {
		return nil, err
	}
	divider.LineStyle.Color = dividerColor
	divider.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(divider)

	img := vgimg.New(width, height)
	p.Draw(draw.New(img))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders the chart to path.
func WriteFile(path string, data Data, maxPoints int) error {
	png, err := Render(data, maxPoints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func xys(times []time.Time, values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(values))
	for i := range values {
		pts[i].X = float64(times[i].Unix())
		pts[i].Y = values[i]
	}
	return pts
}

// bandOutline walks the upper bound forward and the lower bound back.
func bandOutline(dates []time.Time, lower, upper []float64) plotter.XYs {
	n := len(dates)
	pts := make(plotter.XYs, 0, 2*n)
	for i := 0; i < n; i++ {
		pts = append(pts, plotter.XY{X: float64(dates[i].Unix()), Y: upper[i]})
	}
	for i := n - 1; i >= 0; i-- {
		pts = append(pts, plotter.XY{X: float64(dates[i].Unix()), Y: lower[i]})
	}
	return pts
}

func valueRange(series ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 1
	}
	if lo == hi {
		return lo - 1, hi + 1
	}
	return lo, hi
}
