// Package validator lints bot specs before they are served.
//
// The wizard engine trusts its spec: unknown action tags, duplicate step variables or
// SQL of the wrong kind only surface at run time as generic error replies. Lint reports
// them up front.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/ratelimit"
	"github.com/aretw0/botfactory/pkg/sqlguard"
)

var parseModes = map[string]bool{"HTML": true, "Markdown": true, "MarkdownV2": true}

// reserved variables are always bound by the runtime.
var reserved = map[string]bool{"bot_id": true, "user_id": true, "args": true}

// ValidateSpec returns an *AggregateError holding every error-level issue, or nil.
func ValidateSpec(spec *domain.BotSpec) error {
	var errs []error
	for _, issue := range Lint(spec) {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}

// Lint returns every issue found in spec, errors and warnings, in document order.
func Lint(spec *domain.BotSpec) []*Issue {
	l := &linter{}
	if spec == nil {
		l.fail("spec", "spec is empty")
		return l.issues
	}
	l.settings(spec)
	if len(spec.Flows) == 0 {
		l.fail("flows", "spec has no flows")
	}

	seen := make(map[string]int)
	for i := range spec.Flows {
		flow := &spec.Flows[i]
		path := fmt.Sprintf("flows[%d]", i)
		l.entry(path, flow.EntryCmd, spec.CancelCommand())
		if prev, dup := seen[flow.EntryCmd]; dup && flow.EntryCmd != "" {
			l.fail(path+".entry_cmd", fmt.Sprintf("duplicate entry command %q (first used by flows[%d])", flow.EntryCmd, prev))
		} else {
			seen[flow.EntryCmd] = i
		}
		l.flow(path, flow)
	}
	return l.issues
}

type linter struct {
	issues []*Issue
}

func (l *linter) fail(path, reason string) {
	l.issues = append(l.issues, &Issue{Path: path, Reason: reason, Severity: SeverityError})
}

func (l *linter) warn(path, reason string) {
	l.issues = append(l.issues, &Issue{Path: path, Reason: reason, Severity: SeverityWarning})
}

func (l *linter) settings(spec *domain.BotSpec) {
	if cmd := spec.Settings.CancelCommand; cmd != "" && !isCommand(cmd) {
		l.fail("settings.cancel_cmd", fmt.Sprintf("%q is not a command", cmd))
	}
	if mode := spec.Settings.ParseMode; mode != "" && !parseModes[mode] {
		l.warn("settings.parse_mode", fmt.Sprintf("unknown parse mode %q", mode))
	}
}

func (l *linter) entry(path, cmd, cancel string) {
	switch {
	case cmd == "":
		l.fail(path+".entry_cmd", "entry command is required")
	case !isCommand(cmd):
		l.fail(path+".entry_cmd", fmt.Sprintf("%q must start with %s and contain no spaces", cmd, domain.CommandPrefix))
	case cmd == cancel:
		l.fail(path+".entry_cmd", fmt.Sprintf("%q is the cancel command", cmd))
	}
}

func (l *linter) flow(path string, flow *domain.FlowSpec) {
	if !flow.HasSteps() {
		if len(flow.OnEnter) == 0 {
			l.warn(path, "flow has neither steps nor on_enter actions")
		}
		if len(flow.OnComplete) > 0 {
			l.warn(path+".on_complete", "on_complete never runs for a flow without steps")
		}
	}

	vars := make(map[string]bool)
	for i, step := range flow.Steps {
		l.step(fmt.Sprintf("%s.steps[%d]", path, i), step, vars)
	}
	l.actions(path+".on_enter", flow.OnEnter)
	l.actions(path+".on_complete", flow.OnComplete)
}

func (l *linter) step(path string, step domain.StepSpec, vars map[string]bool) {
	if strings.TrimSpace(step.Ask) == "" {
		l.fail(path+".ask", "question is required")
	}
	switch {
	case step.Var == "":
		l.fail(path+".var", "variable name is required")
	case vars[step.Var]:
		l.fail(path+".var", fmt.Sprintf("duplicate variable %q", step.Var))
	case reserved[step.Var]:
		l.warn(path+".var", fmt.Sprintf("%q is bound by the runtime and will be shadowed", step.Var))
	}
	vars[step.Var] = true

	if v := step.Validate; v != nil {
		if v.Regex == "" {
			l.warn(path+".validate", "validator without regex accepts everything")
		} else if _, err := regexp.Compile(v.Regex); err != nil {
			l.fail(path+".validate.regex", err.Error())
		}
	}
	for i, opt := range step.Options {
		if strings.TrimSpace(opt) == "" {
			l.fail(fmt.Sprintf("%s.options[%d]", path, i), "option is empty")
		}
	}
}

func (l *linter) actions(path string, actions []domain.Action) {
	for i, a := range actions {
		l.action(fmt.Sprintf("%s[%d]", path, i), a)
	}
}

func (l *linter) action(path string, a domain.Action) {
	str := func(key string) string {
		s, _ := a.Params[key].(string)
		return s
	}

	switch a.Kind {
	case domain.ActionSQLQuery, domain.ActionSQLExec:
		kind := sqlguard.Query
		if a.Kind == domain.ActionSQLExec {
			kind = sqlguard.Exec
		}
		stmt := str("sql")
		if stmt == "" {
			l.fail(path+".sql", "statement is required")
			return
		}
		if err := sqlguard.Validate(stmt, kind); err != nil {
			var v *sqlguard.Violation
			if errors.As(err, &v) {
				l.fail(path+".sql", fmt.Sprintf("%s: %s", v.Rule, v.Detail))
			} else {
				l.fail(path+".sql", err.Error())
			}
		}
		if a.Kind == domain.ActionSQLQuery && str("result_var") == "" {
			l.warn(path+".result_var", "query result is discarded")
		}
	case domain.ActionReplyTemplate:
		if str("text") == "" && a.Params["keyboard"] == nil {
			l.fail(path+".text", "reply needs a text or a keyboard")
		}
	case domain.ActionBroadcast:
		if strings.TrimSpace(str("message")) == "" {
			l.fail(path+".message", "message is required")
		}
		if at := str("schedule_at"); at != "" {
			if _, err := time.Parse(time.RFC3339, at); err != nil {
				l.fail(path+".schedule_at", "must be an RFC3339 timestamp")
			}
		}
	case domain.ActionRateLimit:
		p, err := ratelimit.DecodeParams(a.Params)
		if err != nil {
			l.fail(path, err.Error())
			return
		}
		if p.Allowance <= 0 || p.WindowS <= 0 {
			l.fail(path, "allowance and window_s must be positive, otherwise the policy is bypassed")
		}
		switch p.Scope {
		case ratelimit.ScopeUser, ratelimit.ScopeChat, ratelimit.ScopeBot:
		default:
			l.fail(path+".scope", fmt.Sprintf("unknown scope %q", p.Scope))
		}
	default:
		l.fail(path, fmt.Sprintf("unknown action %q", a.Tag))
	}
}

func isCommand(cmd string) bool {
	return strings.HasPrefix(cmd, domain.CommandPrefix) && len(cmd) > len(domain.CommandPrefix) &&
		strings.IndexFunc(cmd, unicode.IsSpace) < 0
}
