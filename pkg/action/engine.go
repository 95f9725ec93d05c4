package action

import (
	"context"
	"log/slog"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/abtest"
	"github.com/aretw0/botfactory/pkg/observability"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/aretw0/botfactory/pkg/ratelimit"
	"github.com/aretw0/botfactory/pkg/template"
)

// TextImprover rewrites reply texts and never fails.
type TextImprover interface {
	Improve(ctx context.Context, botID, userID, text string) string
}

// Engine holds the collaborators shared by every Executor. It is safe for concurrent use.
type Engine struct {
	db          ports.Database
	renderer    *template.Renderer
	improver    TextImprover
	split       *abtest.Splitter
	policy      *ratelimit.Policy
	broadcaster ports.Broadcaster

	logger  *slog.Logger
	metrics *observability.Recorder
}

// Option configures the Engine.
type Option func(*Engine)

func WithDatabase(db ports.Database) Option {
	return func(e *Engine) {
		e.db = db
	}
}

func WithRenderer(r *template.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithImprover enables LLM text improvement, either requested by the action or granted
// to the users split selects.
func WithImprover(improver TextImprover, split *abtest.Splitter) Option {
	return func(e *Engine) {
		e.improver = improver
		e.split = split
	}
}

func WithRateLimit(policy *ratelimit.Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

func WithBroadcaster(b ports.Broadcaster) Option {
	return func(e *Engine) {
		e.broadcaster = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(metrics *observability.Recorder) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// NewEngine creates an Engine. Without a renderer, templates are rendered without i18n.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		renderer: template.NewRenderer(nil),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subject identifies who a flow runs for.
type Subject struct {
	BotID  string
	UserID string
	ChatID string
	// Locale is the user locale; DefaultLocale and ParseMode come from the bot settings.
	Locale        string
	DefaultLocale string
	ParseMode     string
}

// NewExecutor creates an Executor whose context starts as a copy of vars.
func (e *Engine) NewExecutor(subject Subject, vars map[string]any) *Executor {
	ctx := make(map[string]any, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}
	return &Executor{engine: e, subject: subject, vars: ctx}
}
