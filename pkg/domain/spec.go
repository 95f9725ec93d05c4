package domain

import (
	"strings"
	"unicode"
)

// CommandPrefix is the character every flow entry command starts with.
const CommandPrefix = "/"

// Defaults applied when a spec leaves the corresponding setting empty.
const (
	DefaultCancelCommand = "/cancel"
	DefaultLocale        = "en"
	DefaultParseMode     = "HTML"
)

// FlowKind is inferred from the presence of the `type` and `steps` fields of a flow.
type FlowKind string

const (
	FlowWizard      FlowKind = "wizard"
	FlowGeneric     FlowKind = "generic"
	FlowLegacySteps FlowKind = "legacy_steps"
)

// BotSpec is the tenant-supplied specification. It is loaded once per version and
// must be treated as immutable afterwards.
type BotSpec struct {
	BotID    string     `json:"bot_id,omitempty"`
	Version  string     `json:"version"`
	Settings Settings   `json:"settings,omitempty"`
	Flows    []FlowSpec `json:"flows"`
}

// Settings holds bot-wide knobs.
type Settings struct {
	DefaultLocale string `json:"default_locale,omitempty"`
	CancelCommand string `json:"cancel_cmd,omitempty"`
	FallbackText  string `json:"fallback_text,omitempty"`
	CompletedText string `json:"completed_text,omitempty"`
	ParseMode     string `json:"parse_mode,omitempty"`
}

// Flow returns the flow registered under entryCmd.
func (s *BotSpec) Flow(entryCmd string) (*FlowSpec, bool) {
	if s == nil || entryCmd == "" {
		return nil, false
	}
	for i := range s.Flows {
		if s.Flows[i].EntryCmd == entryCmd {
			return &s.Flows[i], true
		}
	}
	return nil, false
}

// CancelCommand returns the configured cancel command or the default.
func (s *BotSpec) CancelCommand() string {
	if s != nil && s.Settings.CancelCommand != "" {
		return s.Settings.CancelCommand
	}
	return DefaultCancelCommand
}

// Locale returns the bot default locale.
func (s *BotSpec) Locale() string {
	if s != nil && s.Settings.DefaultLocale != "" {
		return s.Settings.DefaultLocale
	}
	return DefaultLocale
}

// ParseMode returns the bot default reply parse mode.
func (s *BotSpec) ParseMode() string {
	if s != nil && s.Settings.ParseMode != "" {
		return s.Settings.ParseMode
	}
	return DefaultParseMode
}

// FlowSpec is a conversational unit triggered by its entry command.
type FlowSpec struct {
	EntryCmd   string     `json:"entry_cmd"`
	Type       string     `json:"type,omitempty"`
	Steps      []StepSpec `json:"steps,omitempty"`
	OnEnter    []Action   `json:"on_enter,omitempty"`
	OnComplete []Action   `json:"on_complete,omitempty"`
}

// Kind infers the flow kind. A flow carrying steps without an explicit type is a legacy
// step flow; it is driven by the wizard state machine like a typed wizard.
func (f *FlowSpec) Kind() FlowKind {
	switch {
	case len(f.Steps) > 0 && f.Type != "":
		return FlowWizard
	case len(f.Steps) > 0:
		return FlowLegacySteps
	default:
		return FlowGeneric
	}
}

// HasSteps reports whether the flow needs persisted wizard state.
func (f *FlowSpec) HasSteps() bool {
	return len(f.Steps) > 0
}

// StepSpec is one wizard question.
type StepSpec struct {
	Ask      string      `json:"ask"`
	Var      string      `json:"var"`
	Validate *Validation `json:"validate,omitempty"`

	// Options renders a one-tap keyboard; typed text is still accepted.
	Options []string `json:"options,omitempty"`
}

// Validation constrains the answer of a step.
type Validation struct {
	Regex string `json:"regex"`
	Msg   string `json:"msg,omitempty"`
}

// ParseCommand splits an inbound text into its command and the remaining arguments.
// A Telegram style "@botname" suffix is removed from the command.
// Texts not starting with CommandPrefix yield an empty command.
func ParseCommand(text string) (cmd string, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, CommandPrefix) {
		return "", text
	}
	cmd = text
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		cmd, args = text[:i], text[i+1:]
	}
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, strings.TrimSpace(args)
}
