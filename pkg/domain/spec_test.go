package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowSpec_Kind(t *testing.T) {
	steps := []StepSpec{{Ask: "name?", Var: "name"}}

	assert.Equal(t, FlowWizard, (&FlowSpec{Type: "flow.wizard.v1", Steps: steps}).Kind())
	assert.Equal(t, FlowLegacySteps, (&FlowSpec{Steps: steps}).Kind())
	assert.Equal(t, FlowGeneric, (&FlowSpec{Type: "flow.generic.v1"}).Kind())
	assert.Equal(t, FlowGeneric, (&FlowSpec{}).Kind())
}

func TestBotSpec_Defaults(t *testing.T) {
	var spec *BotSpec
	assert.Equal(t, DefaultCancelCommand, spec.CancelCommand())
	assert.Equal(t, DefaultLocale, spec.Locale())

	spec = &BotSpec{Settings: Settings{CancelCommand: "/stop", DefaultLocale: "pt", ParseMode: "Markdown"}}
	assert.Equal(t, "/stop", spec.CancelCommand())
	assert.Equal(t, "pt", spec.Locale())
	assert.Equal(t, "Markdown", spec.ParseMode())
}

func TestBotSpec_DecodeMixedActionFormats(t *testing.T) {
	raw := `{
		"version": "3",
		"flows": [{
			"entry_cmd": "/book",
			"type": "flow.wizard.v1",
			"steps": [{"ask": "service?", "var": "service", "validate": {"regex": "^(massage|spa)$", "msg": "pick one"}}],
			"on_complete": [
				{"action.sql_exec.v1": {"sql": "INSERT INTO bookings(service) VALUES (:service)"}},
				{"type": "action.reply_template.v1", "params": {"text": "Booked: {{service}}"}}
			]
		}]
	}`
	var spec BotSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &spec))

	flow, ok := spec.Flow("/book")
	require.True(t, ok)
	require.Len(t, flow.OnComplete, 2)
	assert.Equal(t, ActionSQLExec, flow.OnComplete[0].Kind)
	assert.Equal(t, ActionReplyTemplate, flow.OnComplete[1].Kind)
	assert.Equal(t, "pick one", flow.Steps[0].Validate.Msg)

	_, ok = spec.Flow("/missing")
	assert.False(t, ok)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
	}{
		{"/book", "/book", ""},
		{"  /book  tomorrow ", "/book", "tomorrow"},
		{"/book@my_bot", "/book", ""},
		{"/start\tpayload", "/start", "payload"},
		{"hello", "", "hello"},
	}
	for _, tt := range tests {
		cmd, args := ParseCommand(tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.args, args, tt.in)
	}
}

func TestWizardState_CloneIsDeep(t *testing.T) {
	s := NewWizardState("/book")
	s.Vars["service"] = "spa"

	c := s.Clone()
	c.Vars["service"] = "massage"
	c.StepIndex = 1

	assert.Equal(t, "spa", s.Vars["service"])
	assert.Equal(t, 0, s.StepIndex)
}
