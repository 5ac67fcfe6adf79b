package statsui

import (
	"sort"
	"time"

	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/telemetry"
)

// timelineDepth is the spec §6 "last-10 timeline" window.
const timelineDepth = 10

// TelemetrySource is the subset of telemetry.Store the Projector reads
// from. Declared narrowly, mirroring pkg/router.TelemetrySource and
// pkg/moderation.TelemetrySink, since the Projector never mutates state.
type TelemetrySource interface {
	Snapshot() (map[string]llm.BackendTelemetry, []llm.DecisionRecord)
}

// Option configures a Projector at construction.
type Option func(*Projector)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

// Projector builds read-only Snapshots from a TelemetrySource.
type Projector struct {
	telemetry TelemetrySource
	now       func() time.Time
}

// New creates a Projector over telemetry.
func New(telemetrySource TelemetrySource, opts ...Option) *Projector {
	p := &Projector{telemetry: telemetrySource, now: time.Now}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Project computes a full Snapshot from the current telemetry state.
func (p *Projector) Project() Snapshot {
	backends, decisions := p.telemetry.Snapshot()

	return Snapshot{
		Summary:               p.summary(backends, decisions),
		ModelUsage:            p.modelUsage(backends, decisions),
		TaskDistribution:      distribution(decisions, func(dr llm.DecisionRecord) string { return string(dr.Config.Task) }),
		PriorityDistribution:  distribution(decisions, func(dr llm.DecisionRecord) string { return string(dr.Config.Priority) }),
		Performance:           p.performance(backends),
		CostAnalysis:          p.costAnalysis(backends),
		Timeline:              p.timeline(decisions),
		ModelComparisonMatrix: p.comparisonMatrix(backends),
	}
}

func (p *Projector) summary(backends map[string]llm.BackendTelemetry, decisions []llm.DecisionRecord) Summary {
	var totalCalls int64

	var weightedSuccess float64

	for _, bt := range backends {
		totalCalls += bt.CallCount
		weightedSuccess += bt.SuccessRate * float64(bt.CallCount)
	}

	overall := 0.0
	if totalCalls > 0 {
		overall = weightedSuccess / float64(totalCalls)
	}

	return Summary{
		TotalDecisions:     len(decisions),
		TotalBackends:      len(backends),
		TotalCalls:         totalCalls,
		OverallSuccessRate: overall,
		GeneratedAt:        p.now(),
	}
}

func (p *Projector) modelUsage(backends map[string]llm.BackendTelemetry, decisions []llm.DecisionRecord) []ModelUsageEntry {
	selections := make(map[string]int64, len(backends))
	for _, dr := range decisions {
		selections[dr.SelectedBackend]++
	}

	names := make(map[string]struct{}, len(backends))
	for name := range backends {
		names[name] = struct{}{}
	}

	for name := range selections {
		names[name] = struct{}{}
	}

	entries := make([]ModelUsageEntry, 0, len(names))
	for name := range names {
		entries = append(entries, ModelUsageEntry{
			Backend:        name,
			SelectionCount: selections[name],
			CallCount:      backends[name].CallCount,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SelectionCount != entries[j].SelectionCount {
			return entries[i].SelectionCount > entries[j].SelectionCount
		}

		return entries[i].Backend < entries[j].Backend
	})

	return entries
}

// distribution builds a sorted histogram of decisions bucketed by key(dr).
func distribution(decisions []llm.DecisionRecord, key func(llm.DecisionRecord) string) []DistributionEntry {
	counts := make(map[string]int64)
	for _, dr := range decisions {
		counts[key(dr)]++
	}

	entries := make([]DistributionEntry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, DistributionEntry{Key: k, Count: v})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}

		return entries[i].Key < entries[j].Key
	})

	return entries
}

func (p *Projector) performance(backends map[string]llm.BackendTelemetry) []PerformanceEntry {
	entries := make([]PerformanceEntry, 0, len(backends))
	for name, bt := range backends {
		entries = append(entries, PerformanceEntry{
			Backend:      name,
			AvgLatencyMs: bt.AvgLatencyMs,
			SuccessRate:  bt.SuccessRate,
			CallCount:    bt.CallCount,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Backend < entries[j].Backend })

	return entries
}

// costAnalysis projects spend using the spec §9 placeholder formula
// cost_per_1k_tokens * call_count * (AssumedTokensPerCall / 1000), i.e.
// the source's "cost·call_count·0.1" with its 100-tokens/call assumption
// made an explicit, named constant rather than a bare literal.
func (p *Projector) costAnalysis(backends map[string]llm.BackendTelemetry) []CostEntry {
	multiplier := float64(telemetry.AssumedTokensPerCall) / 1000.0

	entries := make([]CostEntry, 0, len(backends))
	for name, bt := range backends {
		entries = append(entries, CostEntry{
			Backend:             name,
			CostPer1kToken:      bt.CostPer1kToken,
			EstimatedSpendUnits: bt.CostPer1kToken * float64(bt.CallCount) * multiplier,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].EstimatedSpendUnits > entries[j].EstimatedSpendUnits })

	return entries
}

func (p *Projector) timeline(decisions []llm.DecisionRecord) []TimelineEntry {
	start := max(0, len(decisions)-timelineDepth)
	recent := decisions[start:]

	entries := make([]TimelineEntry, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		dr := recent[i]
		entries = append(entries, TimelineEntry{
			TS:       dr.TS,
			Backend:  dr.SelectedBackend,
			Task:     dr.Config.Task,
			Priority: dr.Config.Priority,
			Score:    dr.Score,
		})
	}

	return entries
}

func (p *Projector) comparisonMatrix(backends map[string]llm.BackendTelemetry) []ComparisonRow {
	rows := make([]ComparisonRow, 0, len(backends))
	for name, bt := range backends {
		rows = append(rows, ComparisonRow{
			Backend:        name,
			Tier:           bt.CapabilityTier,
			CostPer1kToken: bt.CostPer1kToken,
			AvgLatencyMs:   bt.AvgLatencyMs,
			SuccessRate:    bt.SuccessRate,
			CallCount:      bt.CallCount,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Backend < rows[j].Backend })

	return rows
}
