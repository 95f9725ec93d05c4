package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "botfactory"

// Recorder holds the prometheus series emitted by the runtime.
type Recorder struct {
	wizardSteps       *prometheus.CounterVec
	wizardStarts      *prometheus.CounterVec
	wizardCompletions *prometheus.CounterVec
	wizardErrors      *prometheus.CounterVec
	validationFails   *prometheus.CounterVec

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	llmRequests  *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmCacheHits prometheus.Counter
	llmDuration  prometheus.Histogram

	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec
	breakerTimeouts    *prometheus.CounterVec

	rateLimit *prometheus.CounterVec
}

// NewRecorder creates the series and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		wizardSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "wizard_steps_total",
			Help: "Wizard steps accepted.",
		}, []string{"bot_id", "flow_id"}),
		wizardStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "flow_starts_total",
			Help: "Flows started by an entry command.",
		}, []string{"bot_id", "flow_id"}),
		wizardCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "flow_completions_total",
			Help: "Flows whose action list finished successfully.",
		}, []string{"bot_id", "flow_id"}),
		wizardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "flow_errors_total",
			Help: "Flow failures by reason.",
		}, []string{"bot_id", "flow_id", "reason"}),
		validationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "wizard_validation_failures_total",
			Help: "Step inputs rejected by the step validator.",
		}, []string{"bot_id", "flow_id"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actions_total",
			Help: "Executed actions by kind and status.",
		}, []string{"kind", "status"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "action_duration_seconds",
			Help:    "Action execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "LLM completions by outcome.",
		}, []string{"status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "LLM tokens consumed.",
		}, []string{"bot_id", "type"}),
		llmCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_cache_hits_total",
			Help: "LLM responses served from cache.",
		}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds",
			Help:    "Latency of uncached LLM completions.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state changes.",
		}, []string{"bot_id", "state"}),
		breakerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_rejections_total",
			Help: "Calls rejected while the circuit was open.",
		}, []string{"bot_id"}),
		breakerTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_timeouts_total",
			Help: "Guarded calls that failed by exceeding the timeout threshold.",
		}, []string{"bot_id"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ratelimit_checks_total",
			Help: "Rate limit policy decisions.",
		}, []string{"bot_id", "scope", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			r.wizardSteps, r.wizardStarts, r.wizardCompletions, r.wizardErrors, r.validationFails,
			r.actions, r.actionDuration,
			r.llmRequests, r.llmTokens, r.llmCacheHits, r.llmDuration,
			r.breakerTransitions, r.breakerRejections, r.breakerTimeouts,
			r.rateLimit,
		)
	}
	return r
}

func (r *Recorder) WizardStep(botID, flowID string) {
	if r == nil {
		return
	}
	r.wizardSteps.WithLabelValues(botID, flowID).Inc()
}

func (r *Recorder) FlowStarted(botID, flowID string) {
	if r == nil {
		return
	}
	r.wizardStarts.WithLabelValues(botID, flowID).Inc()
}

func (r *Recorder) FlowCompleted(botID, flowID string) {
	if r == nil {
		return
	}
	r.wizardCompletions.WithLabelValues(botID, flowID).Inc()
}

func (r *Recorder) FlowError(botID, flowID, reason string) {
	if r == nil {
		return
	}
	r.wizardErrors.WithLabelValues(botID, flowID, reason).Inc()
}

func (r *Recorder) ValidationFailed(botID, flowID string) {
	if r == nil {
		return
	}
	r.validationFails.WithLabelValues(botID, flowID).Inc()
}

// Action records one action execution. status is "ok", "blocked" or "error".
func (r *Recorder) Action(kind, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(kind, status).Inc()
	r.actionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// LLMRequest records one completion outcome ("ok", "cached", "error", "rejected", ...).
func (r *Recorder) LLMRequest(status string) {
	if r == nil {
		return
	}
	r.llmRequests.WithLabelValues(status).Inc()
}

func (r *Recorder) LLMTokens(botID string, prompt, completion int) {
	if r == nil {
		return
	}
	r.llmTokens.WithLabelValues(botID, "prompt").Add(float64(prompt))
	r.llmTokens.WithLabelValues(botID, "completion").Add(float64(completion))
}

func (r *Recorder) LLMCacheHit() {
	if r == nil {
		return
	}
	r.llmCacheHits.Inc()
}

func (r *Recorder) LLMDuration(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.llmDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) BreakerTransition(botID, state string) {
	if r == nil {
		return
	}
	r.breakerTransitions.WithLabelValues(botID, state).Inc()
}

func (r *Recorder) BreakerRejected(botID string) {
	if r == nil {
		return
	}
	r.breakerRejections.WithLabelValues(botID).Inc()
}

func (r *Recorder) BreakerTimeout(botID string) {
	if r == nil {
		return
	}
	r.breakerTimeouts.WithLabelValues(botID).Inc()
}

// RateLimit records a policy decision; outcome is "allowed", "denied" or "bypass".
func (r *Recorder) RateLimit(botID, scope, outcome string) {
	if r == nil {
		return
	}
	r.rateLimit.WithLabelValues(botID, scope, outcome).Inc()
}
