package statsui

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// chartWidth and chartHeight size every chart on the dashboard uniformly.
const (
	chartWidth  = "900px"
	chartHeight = "400px"
)

// RenderDashboard writes a standalone HTML dashboard for snap. Grounded
// directly on the teacher's anomaly/plot.go go-echarts usage
// (charts.NewLine/NewBar, SetGlobalOptions, AddSeries) rather than on its
// plotpage framework, whose supporting templates and types are absent from
// the retrieval pack.
func RenderDashboard(w io.Writer, snap Snapshot) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Model Router Stats — %d decisions, %d backends",
		snap.Summary.TotalDecisions, snap.Summary.TotalBackends)
	page.Layout = components.PageFlexLayout

	page.AddCharts(
		modelUsageChart(snap.ModelUsage),
		distributionChart("Task Distribution", snap.TaskDistribution),
		distributionChart("Priority Distribution", snap.PriorityDistribution),
		performanceChart(snap.Performance),
		costChart(snap.CostAnalysis),
		comparisonChart(snap.ModelComparisonMatrix),
		timelineChart(snap.Timeline),
	)

	return page.Render(w)
}

func baseGlobalOpts(title, yAxisLabel string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "backend"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yAxisLabel}),
		charts.WithGridOpts(opts.Grid{ContainLabel: opts.Bool(true)}),
	}
}

func modelUsageChart(entries []ModelUsageEntry) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseGlobalOpts("Model Usage", "count")...)

	labels := make([]string, len(entries))
	selections := make([]opts.BarData, len(entries))
	calls := make([]opts.BarData, len(entries))

	for i, e := range entries {
		labels[i] = e.Backend
		selections[i] = opts.BarData{Value: e.SelectionCount}
		calls[i] = opts.BarData{Value: e.CallCount}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("selected", selections)
	bar.AddSeries("invoked", calls)

	return bar
}

func distributionChart(title string, entries []DistributionEntry) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	data := make([]opts.PieData, len(entries))
	for i, e := range entries {
		data[i] = opts.PieData{Name: e.Key, Value: e.Count}
	}

	pie.AddSeries(title, data)

	return pie
}

func performanceChart(entries []PerformanceEntry) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseGlobalOpts("Backend Performance", "latency (ms) / success rate")...)

	labels := make([]string, len(entries))
	latency := make([]opts.BarData, len(entries))
	success := make([]opts.BarData, len(entries))

	for i, e := range entries {
		labels[i] = e.Backend
		latency[i] = opts.BarData{Value: e.AvgLatencyMs}
		success[i] = opts.BarData{Value: e.SuccessRate}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("avg_latency_ms", latency)
	bar.AddSeries("success_rate", success)

	return bar
}

func costChart(entries []CostEntry) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseGlobalOpts("Cost Analysis", "estimated spend units")...)

	labels := make([]string, len(entries))
	spend := make([]opts.BarData, len(entries))

	for i, e := range entries {
		labels[i] = e.Backend
		spend[i] = opts.BarData{Value: e.EstimatedSpendUnits}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("estimated_spend", spend)

	return bar
}

func comparisonChart(rows []ComparisonRow) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseGlobalOpts("Model Comparison Matrix", "raw value")...)

	labels := make([]string, len(rows))
	latency := make([]opts.BarData, len(rows))
	success := make([]opts.BarData, len(rows))
	cost := make([]opts.BarData, len(rows))

	for i, r := range rows {
		labels[i] = r.Backend
		latency[i] = opts.BarData{Value: r.AvgLatencyMs}
		success[i] = opts.BarData{Value: r.SuccessRate}
		cost[i] = opts.BarData{Value: r.CostPer1kToken}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("avg_latency_ms", latency)
	bar.AddSeries("success_rate", success)
	bar.AddSeries("cost_per_1k_token", cost)

	return bar
}

func timelineChart(entries []TimelineEntry) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Last 10 Decisions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "decision (most recent first)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score"}),
	)

	labels := make([]string, len(entries))
	scores := make([]opts.LineData, len(entries))

	for i, e := range entries {
		labels[i] = fmt.Sprintf("%s@%s", e.Backend, e.TS.Format("15:04:05"))
		scores[i] = opts.LineData{Value: e.Score}
	}

	line.SetXAxis(labels)
	line.AddSeries("score", scores, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line
}
