package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage labels
const (
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
)

var (
	// Turn metrics
	turnsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_assistant_turns_in_flight",
		Help: "Number of turns submitted and not yet finished",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_turns_total",
		Help: "Total number of turns processed by outcome",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_assistant_turn_duration_seconds",
		Help:    "End-to-end turn duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// Collaborator metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_stage_requests_total",
		Help: "Total number of collaborator requests per pipeline stage",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_assistant_stage_latency_seconds",
		Help:    "Collaborator latency per pipeline stage in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	// Recorder metrics
	recorderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_recorder_transitions_total",
		Help: "Recorder state transitions by target state",
	}, []string{"state"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_assistant_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// TurnMetrics tracks metrics for a single turn
type TurnMetrics struct {
	startTime time.Time
}

// NewTurnMetrics creates a tracker and counts the turn as in flight
func NewTurnMetrics() *TurnMetrics {
	turnsInFlight.Inc()
	return &TurnMetrics{startTime: time.Now()}
}

// RecordTurnEnd records the end of a turn with its outcome label
func (m *TurnMetrics) RecordTurnEnd(outcome string) {
	turnsInFlight.Dec()
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(time.Since(m.startTime).Seconds())
}

// ObserveStage records one collaborator call for a stage
func (m *TurnMetrics) ObserveStage(stage string, started time.Time, success bool) {
	stageLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordRecorderTransition counts a recorder state change
func RecordRecorderTransition(state string) {
	recorderTransitions.WithLabelValues(state).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
