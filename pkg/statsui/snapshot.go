// Package statsui implements the Stats Projector (spec §4's Section 2
// component table, C11): a read-only projection of the Telemetry Store's
// decision log and backend-telemetry map into the shape the
// GET /model-router/stats contract describes (spec §6) — summary, model
// usage, task/priority distribution, performance, cost analysis, a
// last-10 decision timeline, and a model comparison matrix — plus an HTML
// dashboard rendering that same data.
package statsui

import (
	"time"

	"github.com/quillforge/modelrouter/pkg/llm"
)

// Summary is the top-level snapshot header.
type Summary struct {
	TotalDecisions     int
	TotalBackends      int
	TotalCalls         int64
	OverallSuccessRate float64
	GeneratedAt        time.Time
}

// ModelUsageEntry counts how often a backend was selected (from the
// decision log) versus actually invoked (from telemetry's call_count).
type ModelUsageEntry struct {
	Backend        string
	SelectionCount int64
	CallCount      int64
}

// DistributionEntry is one bucket of a task/priority histogram over the
// decision log.
type DistributionEntry struct {
	Key   string
	Count int64
}

// PerformanceEntry is one backend's current telemetry performance profile.
type PerformanceEntry struct {
	Backend      string
	AvgLatencyMs float64
	SuccessRate  float64
	CallCount    int64
}

// CostEntry is one backend's pricing and a placeholder spend estimate
// (spec §9: "cost·call_count·0.1 ... a faithful implementation should at
// minimum expose it as a configurable constant" — see
// telemetry.AssumedTokensPerCall).
type CostEntry struct {
	Backend             string
	CostPer1kToken      float64
	EstimatedSpendUnits float64
}

// TimelineEntry is one decision-log entry, for the last-10 timeline view.
type TimelineEntry struct {
	TS       time.Time
	Backend  string
	Task     llm.Task
	Priority llm.Priority
	Score    float64
}

// ComparisonRow is one row of the model-comparison matrix: every backend's
// full profile side by side.
type ComparisonRow struct {
	Backend        string
	Tier           llm.CapabilityTier
	CostPer1kToken float64
	AvgLatencyMs   float64
	SuccessRate    float64
	CallCount      int64
}

// Snapshot is the complete projection, matching the GET /model-router/stats
// contract's named sections (spec §6).
type Snapshot struct {
	Summary               Summary
	ModelUsage            []ModelUsageEntry
	TaskDistribution      []DistributionEntry
	PriorityDistribution  []DistributionEntry
	Performance           []PerformanceEntry
	CostAnalysis          []CostEntry
	Timeline              []TimelineEntry // most recent first, capped at 10.
	ModelComparisonMatrix []ComparisonRow
}
