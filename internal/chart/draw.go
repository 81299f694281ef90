package chart

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

func draw(w io.Writer, title string, series []Series) error {
	maxY := 0.0
	lines := make([]chart.Series, 0, len(series))
	for i, s := range series {
		for _, v := range s.Values {
			if v > maxY {
				maxY = v
			}
		}
		lines = append(lines, chart.TimeSeries{
			Name: fmt.Sprintf("p%.0f", s.Quantile*100),
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(i),
				StrokeWidth: 2,
			},
			XValues: s.Times,
			YValues: s.Values,
		})
	}
	if maxY <= 0 {
		maxY = 1
	}

	graph := chart.Chart{
		Title: title,
		TitleStyle: chart.Style{
			FontSize: 14,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:  1200,
		Height: 400,
		XAxis: chart.XAxis{
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			ValueFormatter: chart.TimeHourValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Latency (ms)",
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.1},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
				StrokeWidth: 1.0,
			},
		},
		Series: lines,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}
