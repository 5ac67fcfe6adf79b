package router

import (
	"time"

	"github.com/quillforge/modelrouter/pkg/llm"
)

// candidateInput bundles the static descriptor and dynamic telemetry view
// of one backend, the unit the scoring function operates on.
type candidateInput struct {
	descriptor llm.BackendDescriptor
	telemetry  llm.BackendTelemetry
}

// scoreResult carries the final score plus the reason tokens accumulated
// along the way, for the decision record and for human-readable output.
type scoreResult struct {
	score   float64
	reasons []string
	eligible bool
}

// score implements the spec §4.4 algorithm: capability tier match, latency
// gate, required-capabilities gate, priority-weighted blending, reliability
// penalty, recency boost, floor at 0.
func score(cfg llm.RouterConfig, in candidateInput, now time.Time, recencyWindow time.Duration) scoreResult {
	reasons := make([]string, 0, 6)
	base := 100.0

	requiredTier := cfg.Task.RequiredTier()
	modelTier := in.descriptor.CapabilityTier

	switch {
	case modelTier < requiredTier:
		base -= 30
		reasons = append(reasons, "capability tier below requirement")
	case int(modelTier) > int(requiredTier)+1:
		base -= 10
		reasons = append(reasons, "capability tier overkill")
	default:
		reasons = append(reasons, "capability tier matches requirement")
	}

	if cfg.MaxLatencyMs > 0 && in.telemetry.AvgLatencyMs > float64(cfg.MaxLatencyMs) {
		base -= 50
		reasons = append(reasons, "exceeds requested max latency")
	}

	for _, required := range cfg.RequiredCapabilities {
		if !hasCapability(in.descriptor, required) {
			return scoreResult{score: 0, reasons: append(reasons, "missing required capability: "+required), eligible: false}
		}
	}

	blended := blend(cfg.Priority, base, in.telemetry)
	reasons = append(reasons, "priority blend: "+string(cfg.Priority))

	if in.telemetry.SuccessRate < 0.95 {
		penalty := (1 - in.telemetry.SuccessRate) * 50
		blended -= penalty
		reasons = append(reasons, "reliability penalty applied")
	}

	if recencyWindow > 0 && !in.telemetry.LastUpdatedTS.IsZero() &&
		now.Sub(in.telemetry.LastUpdatedTS) < recencyWindow && in.telemetry.CallCount > 10 {
		blended += 5
		reasons = append(reasons, "recency boost applied")
	}

	if blended < 0 {
		blended = 0
	}

	return scoreResult{score: blended, reasons: reasons, eligible: true}
}

func hasCapability(d llm.BackendDescriptor, capability string) bool {
	switch capability {
	case llm.CapabilityStructuredOutput:
		return d.SupportsStructuredOutput
	case llm.CapabilityStreaming:
		return d.SupportsStreaming
	default:
		return false
	}
}

// blend replaces base with the priority-weighted combination per spec §4.4
// step 4. cost_per_1k and avg_latency_ms guard against division by zero —
// a misconfigured zero-cost or zero-latency backend degrades to the base
// score's weight rather than producing +Inf/NaN.
func blend(priority llm.Priority, base float64, t llm.BackendTelemetry) float64 {
	tierIndex := float64(t.CapabilityTier)

	costTerm := safeInverse(t.CostPer1kToken) * 100
	speedTerm := safeInverse(t.AvgLatencyMs) * 10000
	qualityTerm := (tierIndex + 1) * 25

	switch priority {
	case llm.PriorityCost:
		return 0.3*base + 0.7*costTerm
	case llm.PrioritySpeed:
		return 0.3*base + 0.7*speedTerm
	case llm.PriorityQuality:
		return 0.3*base + 0.7*qualityTerm
	case llm.PriorityBalanced:
		balancedCostTerm := safeInverse(t.CostPer1kToken) * 50
		balancedSpeedTerm := safeInverse(t.AvgLatencyMs) * 5000
		balancedQualityTerm := (tierIndex + 1) * 15

		return 0.2*base + 0.3*balancedCostTerm + 0.3*balancedSpeedTerm + 0.2*balancedQualityTerm
	default:
		return base
	}
}

func safeInverse(v float64) float64 {
	if v <= 0 {
		return 0
	}

	return 1 / v
}
