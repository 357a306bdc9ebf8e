package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
)

// moveRequestMetrics gathers per-request timings for the move endpoint and
// emits them as one structured log line. A nil receiver is valid and does
// nothing, so shared helpers can take it optionally.
type moveRequestMetrics struct {
	logger       *log.Logger
	start        time.Time
	kind         domain.Kind
	outcome      string
	warning      bool
	authDuration time.Duration
	moveDuration time.Duration
	errorStage   string
}

func newMoveRequestMetrics(logger *log.Logger) *moveRequestMetrics {
	return &moveRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *moveRequestMetrics) ObserveAuth(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *moveRequestMetrics) ObserveMove(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.moveDuration = duration
}

func (m *moveRequestMetrics) SetKind(kind domain.Kind) {
	if m == nil {
		return
	}
	m.kind = kind
}

func (m *moveRequestMetrics) SetOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcome = outcome
}

func (m *moveRequestMetrics) SetWarning() {
	if m == nil {
		return
	}
	m.warning = true
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    "/api/boards/:kind/moves",
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.kind != "" {
		fields["kind"] = m.kind
	}
	if m.outcome != "" {
		fields["outcome"] = m.outcome
	}
	if m.warning {
		fields["warning"] = true
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.moveDuration > 0 {
		fields["move_ms"] = durationToMillis(m.moveDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("moves.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
