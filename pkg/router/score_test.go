package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quillforge/modelrouter/pkg/llm"
)

func TestScore_RequiredCapabilityMissing_ReturnsZeroIneligible(t *testing.T) {
	t.Parallel()

	in := candidateInput{
		descriptor: llm.BackendDescriptor{Name: "x", CapabilityTier: llm.TierStandard},
		telemetry:  llm.BackendTelemetry{SuccessRate: 1.0, AvgLatencyMs: 1000, CostPer1kToken: 0.01},
	}

	cfg := llm.RouterConfig{Task: llm.TaskChat, RequiredCapabilities: []string{llm.CapabilityStructuredOutput}}

	result := score(cfg, in, time.Now(), time.Hour)
	assert.Equal(t, 0.0, result.score)
	assert.False(t, result.eligible)
}

func TestScore_ReliabilityPenalty_ReducesScore(t *testing.T) {
	t.Parallel()

	in := candidateInput{
		descriptor: llm.BackendDescriptor{Name: "x", CapabilityTier: llm.TierStandard},
		telemetry:  llm.BackendTelemetry{SuccessRate: 0.5, AvgLatencyMs: 1000, CostPer1kToken: 0.01},
	}

	withPenalty := score(llm.RouterConfig{Task: llm.TaskChat, Priority: llm.PriorityBalanced}, in, time.Now(), time.Hour)

	in.telemetry.SuccessRate = 1.0
	withoutPenalty := score(llm.RouterConfig{Task: llm.TaskChat, Priority: llm.PriorityBalanced}, in, time.Now(), time.Hour)

	assert.Less(t, withPenalty.score, withoutPenalty.score)
}

func TestScore_FloorsAtZero(t *testing.T) {
	t.Parallel()

	in := candidateInput{
		descriptor: llm.BackendDescriptor{Name: "x", CapabilityTier: llm.TierBasic},
		telemetry:  llm.BackendTelemetry{SuccessRate: 0.01, AvgLatencyMs: 100000, CostPer1kToken: 100},
	}

	result := score(llm.RouterConfig{Task: llm.TaskReasoning, Priority: llm.PriorityCost, MaxLatencyMs: 1}, in, time.Now(), time.Hour)
	assert.GreaterOrEqual(t, result.score, 0.0)
}

func TestBlend_Cost_FavorsLowCost(t *testing.T) {
	t.Parallel()

	cheap := blend(llm.PriorityCost, 100, llm.BackendTelemetry{CostPer1kToken: 0.001, AvgLatencyMs: 1000})
	expensive := blend(llm.PriorityCost, 100, llm.BackendTelemetry{CostPer1kToken: 1.0, AvgLatencyMs: 1000})

	assert.Greater(t, cheap, expensive)
}

func TestSafeInverse_ZeroGuard(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, safeInverse(0))
	assert.Equal(t, 0.0, safeInverse(-1))
	assert.Equal(t, 0.5, safeInverse(2))
}
