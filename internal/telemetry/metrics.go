package telemetry

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archmentor_turn_duration_seconds",
			Help:    "End-to-end user turn processing duration by routing path",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"path", "arm"},
	)

	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archmentor_llm_request_duration_seconds",
			Help:    "LLM request duration by pipeline role",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"role", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archmentor_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration by model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model"},
	)

	gradeScores = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archmentor_grade_score",
			Help:    "Rubric scores awarded to student answers",
			Buckets: prometheus.LinearBuckets(0, 0.5, 11), // 0 to 5
		},
		[]string{"phase", "heuristic"},
	)

	phaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmentor_phase_transitions_total",
			Help: "Phase transitions by new phase and advancement mode",
		},
		[]string{"new_phase", "mode"}, // mode: "graded" or "manual"
	)

	gamesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmentor_games_total",
			Help: "Gamified turns by challenge type and content source",
		},
		[]string{"challenge_type", "source"}, // source: "llm" or "fallback"
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmentor_tasks_fired_total",
			Help: "Pedagogical tasks fired by type",
		},
		[]string{"task_type"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archmentor_fallbacks_total",
			Help: "Local recoveries from external failures by component",
		},
		[]string{"component"}, // "classifier", "grader", "game", "vision", "search"
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger}
}

// RecordTurn records one processed user turn
func (c *Collector) RecordTurn(path, arm string, duration time.Duration) {
	turnDuration.WithLabelValues(path, arm).Observe(duration.Seconds())
}

// RecordLLMRequest records an LLM request duration
func (c *Collector) RecordLLMRequest(role string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	llmRequestDuration.WithLabelValues(role, status).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(model string, duration time.Duration) {
	rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordGrade records one rubric score
func (c *Collector) RecordGrade(phase string, score float64, heuristic bool) {
	h := "false"
	if heuristic {
		h = "true"
	}
	gradeScores.WithLabelValues(phase, h).Observe(score)
}

// RecordPhaseTransition counts a phase transition
func (c *Collector) RecordPhaseTransition(newPhase string, manual bool) {
	mode := "graded"
	if manual {
		mode = "manual"
	}
	phaseTransitions.WithLabelValues(newPhase, mode).Inc()
}

// RecordGame counts a gamified turn
func (c *Collector) RecordGame(challengeType string, fromFallback bool) {
	source := "llm"
	if fromFallback {
		source = "fallback"
	}
	gamesTotal.WithLabelValues(challengeType, source).Inc()
}

// RecordTask counts a fired task
func (c *Collector) RecordTask(taskType string) {
	tasksTotal.WithLabelValues(taskType).Inc()
}

// RecordFallback counts a local recovery from an external failure
func (c *Collector) RecordFallback(component string) {
	fallbacksTotal.WithLabelValues(component).Inc()
}
