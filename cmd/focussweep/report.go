package main

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	log "github.com/sirupsen/logrus"
)

// point is one focus setting of the sweep.
type point struct {
	Focus     float64 // mm
	Sharpness float64
	WidthX    float64 // nm
	WidthY    float64 // nm
}

// best returns the index of the sharpest point, or -1 for an empty sweep.
func best(points []point) int {
	idx := -1
	for i, p := range points {
		if idx < 0 || p.Sharpness > points[idx].Sharpness {
			idx = i
		}
	}
	return idx
}

func newLine(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "#ffffff",
			Width:           "100%",
			Height:          "450px",
			PageTitle:       "Focus sweep",
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "5%",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
			AxisPointer: &opts.AxisPointer{
				Type: "cross",
				Snap: opts.Bool(true),
			},
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Focus, mm",
			SplitLine: &opts.SplitLine{
				Show: opts.Bool(true),
			},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  yName,
			Type:  "value",
			Show:  opts.Bool(true),
			Scale: opts.Bool(true),
			SplitLine: &opts.SplitLine{
				Show: opts.Bool(true),
			},
		}),
	)
	return line
}

// writeReport renders the sharpness curve and the spot widths as an HTML
// page.
func writeReport(w io.Writer, name string, points []point) error {
	startTime := time.Now()
	defer func() {
		log.WithFields(log.Fields{
			"time":   time.Since(startTime),
			"points": len(points),
		}).Debug("Rendering report")
	}()

	x := make([]string, len(points))
	score := make([]opts.LineData, len(points))
	wx := make([]opts.LineData, len(points))
	wy := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = fmt.Sprintf("%.3f", p.Focus)
		score[i] = opts.LineData{Value: p.Sharpness}
		wx[i] = opts.LineData{Value: p.WidthX}
		wy[i] = opts.LineData{Value: p.WidthY}
	}

	sharp := newLine("Sharpness "+name, "Laplacian variance")
	sharp.SetXAxis(x).AddSeries("Sharpness", score)

	widths := newLine("Spot size "+name, "Half width, nm")
	widths.SetXAxis(x).
		AddSeries("Width X", wx).
		AddSeries("Width Y", wy)

	page := components.NewPage()
	page.PageTitle = "Focus sweep"
	page.AddCharts(sharp, widths)
	return page.Render(w)
}
