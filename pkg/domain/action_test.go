package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_UnmarshalVersioned(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"type":"action.sql_query.v1","params":{"sql":"SELECT 1","scalar":true}}`), &a)
	require.NoError(t, err)

	assert.Equal(t, ActionSQLQuery, a.Kind)
	assert.Equal(t, TagSQLQuery, a.Tag)
	assert.Equal(t, "SELECT 1", a.Params["sql"])
	assert.Equal(t, true, a.Params["scalar"])
}

func TestAction_UnmarshalInlineParams(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"type":"action.reply_template.v1","text":"hi"}`), &a)
	require.NoError(t, err)

	assert.Equal(t, ActionReplyTemplate, a.Kind)
	assert.Equal(t, "hi", a.Params["text"])
	assert.NotContains(t, a.Params, "type")
}

func TestAction_UnmarshalLegacyKeyed(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"policy.ratelimit.v1":{"scope":"user","allowance":3}}`), &a)
	require.NoError(t, err)

	assert.Equal(t, ActionRateLimit, a.Kind)
	assert.Equal(t, "user", a.Params["scope"])
}

func TestAction_UnknownTagIsKept(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"type":"action.teleport.v9"}`), &a)
	require.NoError(t, err)

	assert.Equal(t, ActionUnknown, a.Kind)
	assert.Equal(t, "action.teleport.v9", a.Tag)
}

func TestAction_UnmarshalRejectsAmbiguousLegacy(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"action.sql_query.v1":{},"action.sql_exec.v1":{}}`), &a)
	assert.Error(t, err)
}

func TestAction_MarshalRoundTripsThroughVersionedForm(t *testing.T) {
	a := NewAction(TagBroadcast, map[string]any{"message": "hello"})
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ops.broadcast.v1","params":{"message":"hello"}}`, string(data))
}
