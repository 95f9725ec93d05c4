package wizard

import (
	"context"
	"errors"
	"strings"

	"github.com/aretw0/botfactory/pkg/action"
	"github.com/aretw0/botfactory/pkg/callback"
	"github.com/aretw0/botfactory/pkg/domain"
)

// HandleTurn processes one inbound message and always returns a reply.
func (e *Engine) HandleTurn(ctx context.Context, turn domain.Turn) domain.Reply {
	invalid := domain.Reply{Text: domain.TextInvalidInput, ParseMode: domain.DefaultParseMode}
	if turn.BotID == "" || turn.UserID == "" {
		return invalid
	}
	text, err := Sanitize(turn.Text, e.maxInput)
	if err != nil {
		e.logger.Warn("rejected input", "bot_id", turn.BotID, "user_id", turn.UserID, "err", err)
		return invalid
	}

	spec, ok := e.loadSpec(ctx, turn.BotID)
	c := conversation{spec: spec, key: turn.Key(), chatID: turn.ChatID, locale: turn.Locale}
	if !ok {
		return e.genericError(c)
	}

	var reply domain.Reply
	err = e.sessions.WithLock(ctx, c.key, func(ctx context.Context) error {
		var err error
		reply, err = e.turn(ctx, c, strings.TrimSpace(text))
		return err
	})
	if err != nil {
		e.logger.Error("turn failed", "bot_id", c.key.BotID, "user_id", c.key.UserID, "err", err)
		e.metrics.FlowError(c.key.BotID, "", "state")
		return e.genericError(c)
	}
	return reply
}

// turn runs under the session lock. Returned errors are state store failures.
func (e *Engine) turn(ctx context.Context, c conversation, text string) (domain.Reply, error) {
	store := e.sessions.Store()
	cmd, args := domain.ParseCommand(text)

	if cmd != "" && cmd == c.spec.CancelCommand() {
		if err := store.Delete(ctx, c.key); err != nil {
			return domain.Reply{}, err
		}
		return c.reply(domain.TextCancelled), nil
	}

	if flow, ok := c.spec.Flow(cmd); ok {
		return e.start(ctx, c, flow, args)
	}

	state, err := store.Load(ctx, c.key)
	if errors.Is(err, domain.ErrStateNotFound) {
		return c.reply(e.text(ctx, c, c.spec.Settings.FallbackText, domain.TextFallback)), nil
	}
	if err != nil {
		return domain.Reply{}, e.reset(ctx, c, err)
	}
	return e.advance(ctx, c, state, text)
}

func (e *Engine) start(ctx context.Context, c conversation, flow *domain.FlowSpec, args string) (domain.Reply, error) {
	e.metrics.FlowStarted(c.key.BotID, flow.EntryCmd)
	if !flow.HasSteps() {
		return e.runGeneric(ctx, c, flow, args), nil
	}

	store := e.sessions.Store()
	// An entry command replaces the wizard in progress.
	if err := store.Delete(ctx, c.key); err != nil {
		return domain.Reply{}, err
	}

	var intro string
	if len(flow.OnEnter) > 0 {
		out := e.actions.NewExecutor(c.subject(), map[string]any{"args": args}).ExecuteAll(ctx, flow.OnEnter)
		switch {
		case out.Err != nil:
			e.metrics.FlowError(c.key.BotID, flow.EntryCmd, "action")
			return e.genericError(c), nil
		case out.Blocked:
			return e.blocked(c, out), nil
		case out.Reply != nil:
			intro = out.Reply.Text
		}
	}

	state := domain.NewWizardState(flow.EntryCmd)
	state.StartedAt = e.now().UTC()
	state.UpdatedAt = state.StartedAt
	if err := store.Save(ctx, c.key, state, e.sessions.TTL()); err != nil {
		return domain.Reply{}, err
	}

	reply := e.ask(ctx, c, flow, state)
	if intro != "" {
		reply.Text = intro + "\n\n" + reply.Text
	}
	return reply, nil
}

func (e *Engine) runGeneric(ctx context.Context, c conversation, flow *domain.FlowSpec, args string) domain.Reply {
	out := e.actions.NewExecutor(c.subject(), map[string]any{"args": args}).ExecuteAll(ctx, flow.OnEnter)
	if out.Err != nil {
		e.metrics.FlowError(c.key.BotID, flow.EntryCmd, "action")
		return e.genericError(c)
	}
	if out.Blocked {
		return e.blocked(c, out)
	}
	e.metrics.FlowCompleted(c.key.BotID, flow.EntryCmd)
	if out.Reply != nil {
		return *out.Reply
	}
	return c.reply(e.text(ctx, c, c.spec.Settings.CompletedText, domain.TextCompleted))
}

func (e *Engine) advance(ctx context.Context, c conversation, state *domain.WizardState, input string) (domain.Reply, error) {
	store := e.sessions.Store()
	flow, ok := c.spec.Flow(state.FlowID)
	if !ok || state.StepIndex < 0 || state.StepIndex >= len(flow.Steps) {
		e.logger.Warn("resetting wizard that no longer matches its flow",
			"bot_id", c.key.BotID,
			"user_id", c.key.UserID,
			"flow_id", state.FlowID,
			"step", state.StepIndex,
		)
		e.metrics.FlowError(c.key.BotID, state.FlowID, "flow_unavailable")
		if err := store.Delete(ctx, c.key); err != nil {
			return domain.Reply{}, err
		}
		return c.reply(domain.TextFlowUnavailable), nil
	}

	step := flow.Steps[state.StepIndex]
	if v := step.Validate; v != nil && v.Regex != "" {
		re, err := e.pattern(v.Regex)
		if err != nil {
			e.logger.Error("invalid step pattern", "bot_id", c.key.BotID, "flow_id", flow.EntryCmd, "var", step.Var, "err", err)
			e.metrics.FlowError(c.key.BotID, flow.EntryCmd, "invalid_regex")
			return e.genericError(c), nil
		}
		if !re.MatchString(input) {
			e.metrics.ValidationFailed(c.key.BotID, flow.EntryCmd)
			msg := step.Ask
			if v.Msg != "" {
				msg = v.Msg
			}
			reply := c.reply(e.render(ctx, c, msg, state.Vars))
			reply.Keyboard = e.options(c, step)
			return reply, nil
		}
	}

	next := state.Clone()
	next.Vars[step.Var] = input
	next.StepIndex++
	next.UpdatedAt = e.now().UTC()
	e.metrics.WizardStep(c.key.BotID, flow.EntryCmd)

	if next.StepIndex < len(flow.Steps) {
		if err := store.Save(ctx, c.key, next, e.sessions.TTL()); err != nil {
			return domain.Reply{}, e.reset(ctx, c, err)
		}
		return e.ask(ctx, c, flow, next), nil
	}
	return e.complete(ctx, c, flow, next)
}

// complete deletes the state before on_complete runs, so a retried final answer
// finds no wizard.
func (e *Engine) complete(ctx context.Context, c conversation, flow *domain.FlowSpec, state *domain.WizardState) (domain.Reply, error) {
	if err := e.sessions.Store().Delete(ctx, c.key); err != nil {
		return domain.Reply{}, err
	}

	vars := make(map[string]any, len(state.Vars))
	for k, v := range state.Vars {
		vars[k] = v
	}
	out := e.actions.NewExecutor(c.subject(), vars).ExecuteAll(ctx, flow.OnComplete)
	if out.Err != nil {
		e.metrics.FlowError(c.key.BotID, flow.EntryCmd, "action")
		return e.genericError(c), nil
	}
	if out.Blocked {
		return e.blocked(c, out), nil
	}
	e.metrics.FlowCompleted(c.key.BotID, flow.EntryCmd)
	if out.Reply != nil {
		return *out.Reply, nil
	}
	return c.reply(e.text(ctx, c, c.spec.Settings.CompletedText, domain.TextCompleted)), nil
}

func (e *Engine) ask(ctx context.Context, c conversation, flow *domain.FlowSpec, state *domain.WizardState) domain.Reply {
	step := flow.Steps[state.StepIndex]
	reply := c.reply(e.render(ctx, c, step.Ask, state.Vars))
	reply.Keyboard = e.options(c, step)
	return reply
}

func (e *Engine) options(c conversation, step domain.StepSpec) [][]domain.Button {
	if len(step.Options) == 0 {
		return nil
	}
	rows := make([][]domain.Button, 0, len(step.Options))
	for _, opt := range step.Options {
		rows = append(rows, []domain.Button{callback.Pick{}.Button(c.key.BotID, c.key.UserID, step.Var, opt)})
	}
	return rows
}

func (e *Engine) blocked(c conversation, out action.Outcome) domain.Reply {
	if out.Reply != nil {
		return *out.Reply
	}
	return e.genericError(c)
}

// reset drops the state of c after a store failure so the next turn starts clean.
func (e *Engine) reset(ctx context.Context, c conversation, cause error) error {
	if err := e.sessions.Store().Delete(context.WithoutCancel(ctx), c.key); err != nil {
		e.logger.Warn("failed to reset wizard state", "bot_id", c.key.BotID, "user_id", c.key.UserID, "err", err)
	}
	return cause
}
