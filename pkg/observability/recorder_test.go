package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.WizardStep("b", "/f")
		r.FlowError("b", "/f", "action")
		r.Action("sql_exec", "ok", time.Millisecond)
		r.LLMTokens("b", 1, 2)
		r.RateLimit("b", "user", "bypass")
	})
}

func TestRecorder_CountsByLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.WizardStep("bot-1", "/book")
	r.WizardStep("bot-1", "/book")
	r.WizardStep("bot-2", "/book")
	r.LLMTokens("bot-1", 10, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.wizardSteps.WithLabelValues("bot-1", "/book")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.wizardSteps.WithLabelValues("bot-2", "/book")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.llmTokens.WithLabelValues("bot-1", "completion")))
}
