// Package ratelimit implements the fixed-window rate limit step of the action DSL.
//
// The policy fails open: invalid parameters and counter store failures allow the call
// and are recorded as bypasses.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/observability"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/aretw0/botfactory/pkg/template"
	"github.com/mitchellh/mapstructure"
)

// DefaultMessage is sent when a denial has no configured message.
const DefaultMessage = "Too many requests. Please try again in {{retry_in}}s."

// Scope selects whose counter a check increments.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeChat Scope = "chat"
	ScopeBot  Scope = "bot"
)

// Params is the decoded parameter block of a policy.ratelimit.v1 action.
type Params struct {
	Scope     Scope  `mapstructure:"scope"`
	WindowS   int    `mapstructure:"window_s"`
	Allowance int    `mapstructure:"allowance"`
	KeySuffix string `mapstructure:"key_suffix"`
	Message   string `mapstructure:"message"`
}

// DecodeParams decodes raw action params, accepting numbers written as strings.
func DecodeParams(raw map[string]any) (Params, error) {
	p := Params{Scope: ScopeUser}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(raw); err != nil {
		return p, fmt.Errorf("invalid ratelimit params: %w", err)
	}
	return p, nil
}

// Subject identifies who is being limited.
type Subject struct {
	BotID  string
	UserID string
	ChatID string
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed  bool
	Message  string
	RetryIn  time.Duration
	Count    int64
	Bypassed bool
	Key      string
}

// Policy evaluates rate limit checks against a counter store.
type Policy struct {
	counter ports.Counter
	logger  *slog.Logger
	metrics *observability.Recorder
}

// Option configures the Policy.
type Option func(*Policy)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

func WithMetrics(metrics *observability.Recorder) Option {
	return func(p *Policy) {
		p.metrics = metrics
	}
}

// NewPolicy creates a Policy over counter.
func NewPolicy(counter ports.Counter, opts ...Option) *Policy {
	p := &Policy{
		counter: counter,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check increments the counter of the subject's scope and decides whether the call fits
// in the allowance. vars is the execution context used for key_suffix and message.
func (p *Policy) Check(ctx context.Context, subject Subject, raw map[string]any, vars map[string]any) Decision {
	params, err := DecodeParams(raw)
	if err != nil {
		return p.bypass(subject, params.Scope, "invalid params", err)
	}
	if params.Allowance <= 0 || params.WindowS <= 0 {
		return p.bypass(subject, params.Scope, "non-positive allowance or window", nil)
	}

	scopeID, err := scopeID(subject, params.Scope)
	if err != nil {
		return p.bypass(subject, params.Scope, "unresolved scope", err)
	}

	key := Key(subject.BotID, scopeID, template.Expand(params.KeySuffix, vars))
	window := time.Duration(params.WindowS) * time.Second

	count, err := p.counter.Incr(ctx, key, window)
	if err != nil {
		return p.bypass(subject, params.Scope, "counter unavailable", err)
	}

	if count <= int64(params.Allowance) {
		p.metrics.RateLimit(subject.BotID, string(params.Scope), "allowed")
		return Decision{Allowed: true, Count: count, Key: key}
	}

	retryIn, err := p.counter.TTL(ctx, key)
	if err != nil || retryIn <= 0 {
		retryIn = window
	}
	p.metrics.RateLimit(subject.BotID, string(params.Scope), "denied")
	p.logger.Debug("rate limit exceeded", "key", key, "count", count, "allowance", params.Allowance)

	return Decision{
		Allowed: false,
		Count:   count,
		RetryIn: retryIn,
		Key:     key,
		Message: denialMessage(params.Message, vars, retryIn),
	}
}

func (p *Policy) bypass(subject Subject, scope Scope, reason string, err error) Decision {
	p.logger.Warn("rate limit bypassed", "bot_id", subject.BotID, "scope", scope, "reason", reason, "err", err)
	p.metrics.RateLimit(subject.BotID, string(scope), "bypass")
	return Decision{Allowed: true, Bypassed: true}
}

func scopeID(s Subject, scope Scope) (string, error) {
	var id string
	switch scope {
	case ScopeUser:
		id = s.UserID
	case ScopeChat:
		id = s.ChatID
	case ScopeBot:
		id = s.BotID
	default:
		return "", fmt.Errorf("unknown scope %q", scope)
	}
	if id == "" {
		return "", fmt.Errorf("missing %s id", scope)
	}
	return id, nil
}

// Key builds the counter key rl:{bot}:{scope id}[:{suffix}].
func Key(botID, scopeID, suffix string) string {
	key := "rl:" + botID + ":" + scopeID
	if suffix != "" {
		key += ":" + suffix
	}
	return key
}

func denialMessage(tmpl string, vars map[string]any, retryIn time.Duration) string {
	if tmpl == "" {
		tmpl = DefaultMessage
	}
	scope := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		scope[k] = v
	}
	scope["retry_in"] = strconv.Itoa(int(retryIn.Round(time.Second) / time.Second))
	return template.Expand(tmpl, scope)
}
