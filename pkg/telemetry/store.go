// Package telemetry implements the Telemetry Store (spec §4.3): owns the
// per-backend rolling-stats map and a bounded decision log, persisted
// write-through to two files under a known directory.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/persist"
)

// dirPerm is the permission used when creating a missing telemetry directory.
const dirPerm = 0o750

// decisionLogCap is the bounded size of the decision-log ring (spec §4.3:
// "ring<DecisionRecord, 100>").
const decisionLogCap = 100

// AssumedTokensPerCall is the placeholder per-call token count spec §9
// flags as an assumption baked into the source's cost estimate
// (`cost·call_count·0.1`). Exposed as a named constant per that note's
// "a faithful implementation should at minimum expose it as a
// configurable constant" — consumed only by the Stats Projector's
// cost-analysis projection, never by routing decisions.
const AssumedTokensPerCall = 100

// telemetrySnapshot is the on-disk shape of the backend-telemetry map.
type telemetrySnapshot struct {
	Backends map[string]llm.BackendTelemetry `json:"backends"`
}

// decisionLogSnapshot is the on-disk shape of the decision log.
type decisionLogSnapshot struct {
	Entries []llm.DecisionRecord `json:"entries"`
}

// Store is the Telemetry Store. All mutating operations are serialized
// behind a single mutex ("all updates serialized; readers may observe
// last-write-wins" — spec §4.3), mirroring the single-writer discipline
// the teacher applies to its own mutable shared state.
type Store struct {
	mu sync.Mutex

	dir               string
	telemetryPersist  *persist.Persister[telemetrySnapshot]
	decisionPersist   *persist.Persister[decisionLogSnapshot]

	backends     map[string]llm.BackendTelemetry
	decisionLog  []llm.DecisionRecord
}

// Option configures a Store at construction.
type Option func(*Store)

// WithDecisionLogBasename overrides the decision-log file's basename.
func WithDecisionLogBasename(basename string) Option {
	return func(s *Store) {
		s.decisionPersist = persist.NewPersister[decisionLogSnapshot](basename, persist.NewJSONCodec())
	}
}

// WithTelemetryBasename overrides the telemetry file's basename.
func WithTelemetryBasename(basename string) Option {
	return func(s *Store) {
		s.telemetryPersist = persist.NewPersister[telemetrySnapshot](basename, persist.NewJSONCodec())
	}
}

// New creates a Store rooted at dir, loading existing state if present.
// seed holds the static backend descriptors used to populate
// initial/missing telemetry rows per spec §4.3: "Missing files imply
// initial state seeded from the static Backend descriptors with
// call_count = 0, success_rate = 1.0, avg_latency_ms =
// nominal_max_latency_ms."
func New(dir string, seed []llm.BackendDescriptor, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}

	s := &Store{
		dir:              dir,
		telemetryPersist: persist.NewPersister[telemetrySnapshot]("model-telemetry", persist.NewJSONCodec()),
		decisionPersist:  persist.NewPersister[decisionLogSnapshot]("routing-history", persist.NewJSONCodec()),
		backends:         make(map[string]llm.BackendTelemetry, len(seed)),
	}

	for _, opt := range opts {
		opt(s)
	}

	loadErr := s.telemetryPersist.Load(dir, func(snap *telemetrySnapshot) {
		for name, bt := range snap.Backends {
			s.backends[name] = bt
		}
	})
	_ = loadErr // missing file is expected on first run; fall through to seeding below.

	for _, bd := range seed {
		if _, ok := s.backends[bd.Name]; ok {
			continue
		}

		s.backends[bd.Name] = llm.BackendTelemetry{
			Name:           bd.Name,
			CapabilityTier: bd.CapabilityTier,
			CostPer1kToken: bd.BaseCostPer1kTokens,
			SuccessRate:    1.0,
			AvgLatencyMs:   float64(bd.NominalMaxLatencyMs),
			CallCount:      0,
		}
	}

	loadLogErr := s.decisionPersist.Load(dir, func(snap *decisionLogSnapshot) {
		s.decisionLog = snap.Entries
	})
	_ = loadLogErr

	return s, nil
}

// Update implements update(backend, latency_ms, success) per spec §4.3's
// running-mean formula (see DESIGN.md for the running-mean-vs-EMA Open
// Question resolution). Write-through: persists the telemetry file before
// returning.
func (s *Store) Update(ctx context.Context, backend string, latencyMs int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bt, ok := s.backends[backend]
	if !ok {
		bt = llm.BackendTelemetry{Name: backend, SuccessRate: 1.0, AvgLatencyMs: float64(latencyMs)}
	}

	n := float64(bt.CallCount + 1)
	successVal := 0.0

	if success {
		successVal = 1.0
	}

	bt.AvgLatencyMs = (bt.AvgLatencyMs*(n-1) + float64(latencyMs)) / n
	bt.SuccessRate = (bt.SuccessRate*(n-1) + successVal) / n
	bt.LastLatencyMs = latencyMs
	bt.LastUpdatedTS = time.Now()
	bt.CallCount = int64(n)

	s.backends[backend] = bt

	return s.persistTelemetryLocked()
}

// RecordDecision implements record_decision(dr): append to the ring,
// dropping the oldest entry once size exceeds 100. Write-through.
func (s *Store) RecordDecision(ctx context.Context, dr llm.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisionLog = append(s.decisionLog, dr)

	if len(s.decisionLog) > decisionLogCap {
		s.decisionLog = s.decisionLog[len(s.decisionLog)-decisionLogCap:]
	}

	return s.persistDecisionLogLocked()
}

// Snapshot implements snapshot(): a consistent copy of telemetry and the
// decision log.
func (s *Store) Snapshot() (map[string]llm.BackendTelemetry, []llm.DecisionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backends := make(map[string]llm.BackendTelemetry, len(s.backends))
	for k, v := range s.backends {
		backends[k] = v
	}

	log := make([]llm.DecisionRecord, len(s.decisionLog))
	copy(log, s.decisionLog)

	return backends, log
}

func (s *Store) persistTelemetryLocked() error {
	snap := telemetrySnapshot{Backends: s.backends}

	return s.telemetryPersist.Save(s.dir, func() *telemetrySnapshot { return &snap })
}

func (s *Store) persistDecisionLogLocked() error {
	snap := decisionLogSnapshot{Entries: s.decisionLog}

	return s.decisionPersist.Save(s.dir, func() *decisionLogSnapshot { return &snap })
}
