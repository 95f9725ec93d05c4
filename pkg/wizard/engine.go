package wizard

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/action"
	"github.com/aretw0/botfactory/pkg/callback"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/observability"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/aretw0/botfactory/pkg/session"
	"github.com/aretw0/botfactory/pkg/template"
)

// Engine drives wizards for every bot. It is safe for concurrent use.
type Engine struct {
	specs     ports.SpecLoader
	sessions  *session.Manager
	actions   *action.Engine
	callbacks *callback.Dispatcher
	renderer  *template.Renderer

	maxInput int
	now      func() time.Time
	patterns sync.Map // regex source -> compiled

	logger  *slog.Logger
	metrics *observability.Recorder
}

// Option configures the Engine.
type Option func(*Engine)

// WithCallbacks replaces the default dispatcher, which only knows the pick widget.
func WithCallbacks(d *callback.Dispatcher) Option {
	return func(e *Engine) {
		e.callbacks = d
	}
}

// WithRenderer sets the renderer used for questions and bot texts.
func WithRenderer(r *template.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		e.maxInput = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
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

// NewEngine creates an Engine.
func NewEngine(specs ports.SpecLoader, sessions *session.Manager, actions *action.Engine, opts ...Option) *Engine {
	e := &Engine{
		specs:     specs,
		sessions:  sessions,
		actions:   actions,
		callbacks: callback.NewDispatcher(),
		renderer:  template.NewRenderer(nil),
		maxInput:  DefaultMaxInputSize,
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// conversation is the per-turn view of one (bot, user) pair.
type conversation struct {
	spec   *domain.BotSpec
	key    domain.SessionKey
	chatID string
	locale string
}

func (c conversation) subject() action.Subject {
	return action.Subject{
		BotID:         c.key.BotID,
		UserID:        c.key.UserID,
		ChatID:        c.chatID,
		Locale:        c.locale,
		DefaultLocale: c.spec.Locale(),
		ParseMode:     c.spec.ParseMode(),
	}
}

func (c conversation) reply(text string) domain.Reply {
	return domain.Reply{Text: text, ParseMode: c.spec.ParseMode()}
}

func (e *Engine) loadSpec(ctx context.Context, botID string) (*domain.BotSpec, bool) {
	spec, err := e.specs.LoadSpec(ctx, botID, "")
	if err != nil {
		if errors.Is(err, domain.ErrSpecNotFound) {
			e.logger.Warn("no spec for bot", "bot_id", botID)
		} else {
			e.logger.Error("failed to load spec", "bot_id", botID, "err", err)
		}
		e.metrics.FlowError(botID, "", "spec")
		return nil, false
	}
	return spec, true
}

// text renders a bot-level text, falling back to def when the spec leaves it empty.
func (e *Engine) text(ctx context.Context, c conversation, tmpl, def string) string {
	if tmpl == "" {
		return def
	}
	return e.render(ctx, c, tmpl, nil)
}

func (e *Engine) render(ctx context.Context, c conversation, tmpl string, vars map[string]string) string {
	ctxVars := make(map[string]any, len(vars))
	for k, v := range vars {
		ctxVars[k] = v
	}
	out, err := e.renderer.Render(ctx, tmpl, ctxVars, template.Options{
		BotID:         c.key.BotID,
		Locale:        c.locale,
		DefaultLocale: c.spec.Locale(),
	})
	if err != nil {
		e.logger.Error("failed to render text", "bot_id", c.key.BotID, "err", err)
		return template.ErrorMarker
	}
	return out
}

func (e *Engine) pattern(expr string) (*regexp.Regexp, error) {
	if v, ok := e.patterns.Load(expr); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	e.patterns.Store(expr, re)
	return re, nil
}

func (e *Engine) genericError(c conversation) domain.Reply {
	return c.reply(domain.TextGenericError)
}
