package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ActionKind is the normalized discriminant of an action definition.
type ActionKind string

const (
	ActionUnknown       ActionKind = ""
	ActionSQLQuery      ActionKind = "sql_query"
	ActionSQLExec       ActionKind = "sql_exec"
	ActionReplyTemplate ActionKind = "reply_template"
	ActionBroadcast     ActionKind = "broadcast"
	ActionRateLimit     ActionKind = "ratelimit"
)

// Versioned tags accepted in specs.
const (
	TagSQLQuery      = "action.sql_query.v1"
	TagSQLExec       = "action.sql_exec.v1"
	TagReplyTemplate = "action.reply_template.v1"
	TagBroadcast     = "ops.broadcast.v1"
	TagRateLimit     = "policy.ratelimit.v1"
)

var actionTags = map[string]ActionKind{
	TagSQLQuery:      ActionSQLQuery,
	TagSQLExec:       ActionSQLExec,
	TagReplyTemplate: ActionReplyTemplate,
	TagBroadcast:     ActionBroadcast,
	TagRateLimit:     ActionRateLimit,
}

// ParseActionKind maps a spec tag to its kind. Unknown tags map to ActionUnknown.
func ParseActionKind(tag string) ActionKind {
	return actionTags[tag]
}

// Action is one unit of server-side work inside an on_enter/on_complete list.
//
// Two encodings are accepted and normalized here:
//
//	{"type": "action.sql_query.v1", "params": {...}}
//	{"action.sql_query.v1": {...}}
//
// Tag keeps the raw discriminant so unknown actions can be reported by name.
type Action struct {
	Kind   ActionKind
	Tag    string
	Params map[string]any
}

// NewAction builds an action from a tag and its params.
func NewAction(tag string, params map[string]any) Action {
	if params == nil {
		params = make(map[string]any)
	}
	return Action{Kind: ParseActionKind(tag), Tag: tag, Params: params}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("action must be an object: %w", err)
	}

	if rawType, ok := raw["type"]; ok {
		var tag string
		if err := json.Unmarshal(rawType, &tag); err != nil {
			return fmt.Errorf("action type must be a string: %w", err)
		}
		params := make(map[string]any)
		if rawParams, ok := raw["params"]; ok && !isNull(rawParams) {
			if err := json.Unmarshal(rawParams, &params); err != nil {
				return fmt.Errorf("action %s: params must be an object: %w", tag, err)
			}
		} else {
			// Inline params: every sibling of "type".
			for k, v := range raw {
				if k == "type" {
					continue
				}
				var val any
				if err := json.Unmarshal(v, &val); err != nil {
					return fmt.Errorf("action %s: field %s: %w", tag, k, err)
				}
				params[k] = val
			}
		}
		*a = NewAction(tag, params)
		return nil
	}

	// Legacy keyed form: the single key is the tag.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) != 1 {
		return fmt.Errorf("action must have a type field or exactly one tag key, got %v", keys)
	}
	tag := keys[0]
	params := make(map[string]any)
	if !isNull(raw[tag]) {
		if err := json.Unmarshal(raw[tag], &params); err != nil {
			return fmt.Errorf("action %s: params must be an object: %w", tag, err)
		}
	}
	*a = NewAction(tag, params)
	return nil
}

// MarshalJSON always emits the versioned encoding.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params,omitempty"`
	}{Type: a.Tag, Params: a.Params})
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
