package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/mapset-verifier/server/pkg/beatmap"
)

const (
	chartWidth  = "100%"
	chartHeight = "320px"
	styleTagLen = len("</style>")
)

var objectSeries = []struct {
	name  string
	kind  beatmap.ObjectKind
	color string
}{
	{"Circles", beatmap.ObjectCircle, "#66ccff"},
	{"Sliders", beatmap.ObjectSlider, "#ff66aa"},
	{"Spinners", beatmap.ObjectSpinner, "#ffcc22"},
	{"Hold notes", beatmap.ObjectHold, "#88dd66"},
}

// objectChart renders a stacked bar chart of hit objects per difficulty as
// an embeddable fragment.
func objectChart(stats []beatmap.Stats) (string, error) {
	labels := make([]string, len(stats))
	for i, s := range stats {
		labels[i] = s.Version
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "0"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Objects"}),
	)
	bar.SetXAxis(labels)

	for _, series := range objectSeries {
		data := make([]opts.BarData, len(stats))
		for i, s := range stats {
			data[i] = opts.BarData{Value: s.Counts[series.kind]}
		}

		bar.AddSeries(series.name, data,
			charts.WithBarChartOpts(opts.BarChart{Stack: "objects"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: series.color}),
		)
	}

	var buf bytes.Buffer

	err := bar.Render(&buf)
	if err != nil {
		return "", fmt.Errorf("render object chart: %w", err)
	}

	return extractChartContent(buf.String()), nil
}

// extractChartContent strips the page around an echarts chart, keeping the
// chart element and its script.
func extractChartContent(page string) string {
	trimmed := strings.TrimSpace(page)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return page
	}

	start := strings.Index(page, `<div class="container">`)
	if start == -1 {
		return page
	}

	end := strings.Index(page, `</body>`)
	if end == -1 {
		return page
	}

	content := page[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="overview-chart"`)

	return removeStyleTags(content)
}

func removeStyleTags(content string) string {
	for {
		i := strings.Index(content, `<style>`)
		if i == -1 {
			return content
		}

		j := strings.Index(content[i:], `</style>`)
		if j == -1 {
			return content
		}

		content = content[:i] + content[i+j+styleTagLen:]
	}
}
