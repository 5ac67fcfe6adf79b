package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/quillforge/modelrouter/pkg/statsui"
)

// NewStatsCommand builds the `stats` subcommand: a terminal projection of
// the Stats Projector's Snapshot (spec §4.4/§9's stats contract), rendered
// as go-pretty tables.
func NewStatsCommand() *cobra.Command {
	var (
		configPath string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print model router and moderation statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			if noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			a, err := bootstrap(configPath)
			if err != nil {
				return err
			}

			printSnapshot(os.Stdout, a.projector.Project())

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

func printSnapshot(w *os.File, snap statsui.Snapshot) {
	printSummary(w, snap.Summary)
	printModelUsage(w, snap.ModelUsage)
	printDistribution(w, "Task Distribution", snap.TaskDistribution)
	printDistribution(w, "Priority Distribution", snap.PriorityDistribution)
	printPerformance(w, snap.Performance)
	printCostAnalysis(w, snap.CostAnalysis)
	printTimeline(w, snap.Timeline)
	printComparisonMatrix(w, snap.ModelComparisonMatrix)
}

func printSummary(w *os.File, s statsui.Summary) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Model Router Summary")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendRow(table.Row{"Total decisions", s.TotalDecisions})
	tbl.AppendRow(table.Row{"Total backends", s.TotalBackends})
	tbl.AppendRow(table.Row{"Total calls", s.TotalCalls})
	tbl.AppendRow(table.Row{"Overall success rate", successRateCell(s.OverallSuccessRate)})
	tbl.AppendRow(table.Row{"Generated at", humanize.Time(s.GeneratedAt)})
	tbl.Render()
	fmt.Fprintln(w)
}

func printModelUsage(w *os.File, entries []statsui.ModelUsageEntry) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Model Usage")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Backend", "Selections", "Calls"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{e.Backend, e.SelectionCount, e.CallCount})
	}

	tbl.Render()
	fmt.Fprintln(w)
}

func printDistribution(w *os.File, title string, entries []statsui.DistributionEntry) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, title)

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Key", "Count"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{e.Key, e.Count})
	}

	tbl.Render()
	fmt.Fprintln(w)
}

func printPerformance(w *os.File, entries []statsui.PerformanceEntry) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Performance")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Backend", "Avg Latency (ms)", "Success Rate", "Calls"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{e.Backend, fmt.Sprintf("%.1f", e.AvgLatencyMs), successRateCell(e.SuccessRate), e.CallCount})
	}

	tbl.Render()
	fmt.Fprintln(w)
}

func printCostAnalysis(w *os.File, entries []statsui.CostEntry) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Cost Analysis")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Backend", "Cost / 1k tokens", "Estimated spend"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{e.Backend, fmt.Sprintf("%.4f", e.CostPer1kToken), fmt.Sprintf("%.2f", e.EstimatedSpendUnits)})
	}

	tbl.Render()
	fmt.Fprintln(w)
}

func printTimeline(w *os.File, entries []statsui.TimelineEntry) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Recent Decisions")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"When", "Backend", "Task", "Priority", "Score"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{humanize.Time(e.TS), e.Backend, e.Task, e.Priority, fmt.Sprintf("%.2f", e.Score)})
	}

	tbl.Render()
	fmt.Fprintln(w)
}

func printComparisonMatrix(w *os.File, rows []statsui.ComparisonRow) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Model Comparison Matrix")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Backend", "Tier", "Cost / 1k tokens", "Avg Latency (ms)", "Success Rate", "Calls"})

	for _, r := range rows {
		tbl.AppendRow(table.Row{
			r.Backend, r.Tier, fmt.Sprintf("%.4f", r.CostPer1kToken),
			fmt.Sprintf("%.1f", r.AvgLatencyMs), successRateCell(r.SuccessRate), r.CallCount,
		})
	}

	tbl.Render()
}

// successRateCell colorizes a success rate: green at or above 0.9, yellow
// at or above 0.5, red below — mirroring the teacher's compliance-percentage
// severity coloring in cmd/uast/validate.go.
func successRateCell(rate float64) string {
	pct := fmt.Sprintf("%.1f%%", rate*100)

	switch {
	case rate >= 0.9:
		return color.New(color.FgGreen).Sprint(pct)
	case rate >= 0.5:
		return color.New(color.FgYellow).Sprint(pct)
	default:
		return color.New(color.FgRed).Sprint(pct)
	}
}
