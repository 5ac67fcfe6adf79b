package moderation

import (
	"context"
	"log/slog"

	"github.com/quillforge/modelrouter/pkg/llm"
)

// Alert is emitted whenever a moderation result is flagged or critical
// (spec §4.8 step 6: "if flagged || severity==critical, emit an alert
// record").
type Alert struct {
	Backend string
	Result  llm.ModerationResult
	Locale  string
}

// AlertSink routes moderation alerts. Pluggable; the default logs to
// stderr via slog (spec §4.8: "an AlertSink interface with a default
// stderr-log sink; pluggable").
type AlertSink interface {
	Emit(ctx context.Context, alert Alert)
}

// StderrAlertSink is the default AlertSink, logging one structured record
// per alert at warn level.
type StderrAlertSink struct {
	logger *slog.Logger
}

// NewStderrAlertSink creates a StderrAlertSink. A nil logger falls back to
// slog.Default().
func NewStderrAlertSink(logger *slog.Logger) *StderrAlertSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &StderrAlertSink{logger: logger}
}

// Emit implements AlertSink.
func (s *StderrAlertSink) Emit(ctx context.Context, alert Alert) {
	s.logger.WarnContext(ctx, "moderation alert",
		slog.String("backend", alert.Backend),
		slog.String("locale", alert.Locale),
		slog.String("severity", string(alert.Result.Severity)),
		slog.Bool("flagged", alert.Result.Flagged),
		slog.Float64("risk_score", alert.Result.RiskScore),
		slog.Any("categories", alert.Result.Categories),
	)
}
