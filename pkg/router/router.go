// Package router implements the Model Router (spec §4.4): scores
// candidate backends against a RouterConfig, returns a selection with
// alternatives, and records every decision to the Telemetry Store.
package router

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/quillforge/modelrouter/pkg/llm"
)

// alternativesKept is how many non-selected candidates are kept in a
// Selection's Alternatives slice (spec §4.4: "top-3 others").
const alternativesKept = 3

// ErrNoEligibleBackend is returned when every candidate in a non-empty
// backend table fails a hard gate (most commonly a missing required
// capability). Spec §7 classifies this as a configuration error: "surfaced
// to caller; no silent fallback" — distinct from the empty-table case,
// which has a well-known default to fall back to.
var ErrNoEligibleBackend = errors.New("router: no eligible backend for request")

// TelemetrySource is the subset of telemetry.Store the Router depends on.
// Declared as a narrow interface so the router package does not import
// telemetry directly, keeping the dependency edge one-directional
// (telemetry -> llm, router -> llm, router -> telemetry via this
// interface only where actually invoked).
type TelemetrySource interface {
	Snapshot() (map[string]llm.BackendTelemetry, []llm.DecisionRecord)
	RecordDecision(ctx context.Context, dr llm.DecisionRecord) error
}

// Selection is the result of Router.Select.
type Selection struct {
	Backend      string
	Score        float64
	Reason       []string
	Alternatives []llm.Alternative
}

// Router scores and selects backends.
type Router struct {
	descriptors     map[string]llm.BackendDescriptor
	order           []string // deterministic iteration order, insertion order of descriptors.
	telemetry       TelemetrySource
	defaultBackend  string
	recencyWindow   time.Duration
	now             func() time.Time
}

// Option configures a Router at construction.
type Option func(*Router)

// WithRecencyWindow overrides the recency-boost window (spec default 24h).
func WithRecencyWindow(d time.Duration) Option {
	return func(r *Router) { r.recencyWindow = d }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router over the given static backend descriptors,
// scoring against telemetry's dynamic view. defaultBackend is the
// well-known fallback returned when descriptors is empty (spec §4.4:
// "if the backend table is empty, return a well-known default
// (configured at init); never fail").
func New(descriptors []llm.BackendDescriptor, telemetrySource TelemetrySource, defaultBackend string, opts ...Option) *Router {
	r := &Router{
		descriptors:    make(map[string]llm.BackendDescriptor, len(descriptors)),
		order:          make([]string, 0, len(descriptors)),
		telemetry:      telemetrySource,
		defaultBackend: defaultBackend,
		recencyWindow:  24 * time.Hour,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	for _, d := range descriptors {
		r.descriptors[d.Name] = d
		r.order = append(r.order, d.Name)
	}

	return r
}

// Select implements the Model Router's selection operation. Every call
// records a decision to the Telemetry Store before returning, including
// the empty-table fallback path.
func (r *Router) Select(ctx context.Context, cfg llm.RouterConfig) (Selection, error) {
	if len(r.order) == 0 {
		sel := Selection{
			Backend: r.defaultBackend,
			Score:   0,
			Reason:  []string{"backend table empty: returning configured default"},
		}

		_ = r.telemetry.RecordDecision(ctx, toDecisionRecord(r.now(), cfg, sel))

		return sel, nil
	}

	telemetrySnapshot, _ := r.telemetry.Snapshot()

	type candidate struct {
		name   string
		result scoreResult
		tel    llm.BackendTelemetry
	}

	candidates := make([]candidate, 0, len(r.order))

	for _, name := range r.order {
		descriptor := r.descriptors[name]

		tel, ok := telemetrySnapshot[name]
		if !ok {
			tel = llm.BackendTelemetry{
				Name:           name,
				CapabilityTier: descriptor.CapabilityTier,
				CostPer1kToken: descriptor.BaseCostPer1kTokens,
				SuccessRate:    1.0,
				AvgLatencyMs:   float64(descriptor.NominalMaxLatencyMs),
			}
		}

		result := score(cfg, candidateInput{descriptor: descriptor, telemetry: tel}, r.now(), r.recencyWindow)
		candidates = append(candidates, candidate{name: name, result: result, tel: tel})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.result.eligible != b.result.eligible {
			return a.result.eligible
		}

		if a.result.score != b.result.score {
			return a.result.score > b.result.score
		}

		if a.tel.CallCount != b.tel.CallCount {
			return a.tel.CallCount > b.tel.CallCount
		}

		if a.tel.CostPer1kToken != b.tel.CostPer1kToken {
			return a.tel.CostPer1kToken < b.tel.CostPer1kToken
		}

		return a.name < b.name
	})

	winner := candidates[0]

	if !winner.result.eligible {
		sel := Selection{
			Backend: "",
			Score:   0,
			Reason:  []string{"no candidate satisfied required capabilities"},
		}

		_ = r.telemetry.RecordDecision(ctx, toDecisionRecord(r.now(), cfg, sel))

		return Selection{}, ErrNoEligibleBackend
	}

	alternatives := make([]llm.Alternative, 0, alternativesKept)
	for _, c := range candidates[1:] {
		if len(alternatives) >= alternativesKept {
			break
		}

		alternatives = append(alternatives, llm.Alternative{
			Backend: c.name,
			Score:   c.result.score,
			Reason:  strings.Join(c.result.reasons, "; "),
		})
	}

	sel := Selection{
		Backend:      winner.name,
		Score:        winner.result.score,
		Reason:       winner.result.reasons,
		Alternatives: alternatives,
	}

	_ = r.telemetry.RecordDecision(ctx, toDecisionRecord(r.now(), cfg, sel))

	return sel, nil
}

func toDecisionRecord(ts time.Time, cfg llm.RouterConfig, sel Selection) llm.DecisionRecord {
	return llm.DecisionRecord{
		TS:              ts,
		Config:          cfg,
		SelectedBackend: sel.Backend,
		ReasonTokens:    sel.Reason,
		Score:           sel.Score,
		Alternatives:    sel.Alternatives,
	}
}
