package moderation

import (
	"sync"

	"github.com/quillforge/modelrouter/pkg/alg/stats"
)

// MetricsSnapshot is a read-only copy of the rolling moderation metrics,
// returned by the GET /moderation read endpoint (spec §4.8, §6).
type MetricsSnapshot struct {
	Total             int64
	Flagged           int64
	CacheHits         int64
	CacheMisses       int64
	SeverityHistogram map[string]int64
	LanguageHistogram map[string]int64
	AvgLatencyMs      float64
	AvgRiskScore      float64
}

// rollingMetrics accumulates the incremental moderation aggregates (spec
// §4.8: "update rolling metrics (total, flagged, severity histogram,
// language histogram, avg latency, avg risk)"), protected by a short
// critical section around each update (spec §5: "Rolling metrics in the
// Moderation Service are protected by a short critical section").
//
// avg_latency_ms and avg_risk_score use an EMA rather than a plain running
// mean: spec §9 leaves the smoothing choice open here (unlike the
// Telemetry Store's avg_latency_ms, which spec §8's seeded scenarios pin
// to a literal running mean), and an EMA better tracks a service whose
// traffic mix and backend health drift over long uptimes.
type rollingMetrics struct {
	mu sync.Mutex

	total       int64
	flagged     int64
	cacheHits   int64
	cacheMisses int64
	severity    map[string]int64
	language    map[string]int64
	latencyEMA  *stats.EMA
	riskEMA     *stats.EMA
}

func newRollingMetrics() *rollingMetrics {
	return &rollingMetrics{
		severity:   map[string]int64{},
		language:   map[string]int64{},
		latencyEMA: stats.NewEMA(stats.DefaultEMAAlpha),
		riskEMA:    stats.NewEMA(stats.DefaultEMAAlpha),
	}
}

func (m *rollingMetrics) recordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cacheHits++
}

func (m *rollingMetrics) recordResult(languageCode string, result resultFields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.cacheMisses++

	if result.flagged {
		m.flagged++
	}

	m.severity[result.severity]++
	m.language[languageCode]++
	m.latencyEMA.Update(float64(result.latencyMs))
	m.riskEMA.Update(result.riskScore)
}

// resultFields is the subset of a ModerationResult + call latency that
// rollingMetrics.recordResult needs, kept free of the llm package import
// so this file stays a narrow, testable unit.
type resultFields struct {
	severity  string
	flagged   bool
	riskScore float64
	latencyMs int64
}

func (m *rollingMetrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	severity := make(map[string]int64, len(m.severity))
	for k, v := range m.severity {
		severity[k] = v
	}

	language := make(map[string]int64, len(m.language))
	for k, v := range m.language {
		language[k] = v
	}

	return MetricsSnapshot{
		Total:             m.total,
		Flagged:           m.flagged,
		CacheHits:         m.cacheHits,
		CacheMisses:       m.cacheMisses,
		SeverityHistogram: severity,
		LanguageHistogram: language,
		AvgLatencyMs:      m.latencyEMA.Value(),
		AvgRiskScore:      m.riskEMA.Value(),
	}
}
