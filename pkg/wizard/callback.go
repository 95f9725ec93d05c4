package wizard

import (
	"context"
	"errors"

	"github.com/aretw0/botfactory/pkg/callback"
	"github.com/aretw0/botfactory/pkg/domain"
)

// HandleCallback processes an inline button press and always returns a reply.
// A widget answer of type complete is fed to the active step as if it had been typed.
func (e *Engine) HandleCallback(ctx context.Context, cb domain.Callback) domain.Reply {
	data, err := Sanitize(cb.Data, e.maxInput)
	if err != nil || cb.BotID == "" || cb.UserID == "" {
		return domain.Reply{Text: domain.TextInvalidCallback, ParseMode: domain.DefaultParseMode}
	}

	spec, ok := e.loadSpec(ctx, cb.BotID)
	c := conversation{
		spec:   spec,
		key:    domain.SessionKey{BotID: cb.BotID, UserID: cb.UserID},
		chatID: cb.ChatID,
		locale: cb.Locale,
	}
	if !ok {
		return e.genericError(c)
	}

	res, err := e.callbacks.Dispatch(ctx, cb.BotID, cb.UserID, data)
	if err != nil {
		e.logger.Warn("rejected callback", "bot_id", cb.BotID, "user_id", cb.UserID, "data", data, "err", err)
		return c.reply(domain.TextInvalidCallback)
	}

	switch res.Type {
	case callback.EditMessage:
		reply := c.reply(res.Text)
		reply.Keyboard = res.Keyboard
		reply.Edit = true
		return reply
	case callback.Navigation:
		return c.reply("")
	case callback.Complete:
	default:
		return c.reply(domain.TextInvalidCallback)
	}

	var reply domain.Reply
	err = e.sessions.WithLock(ctx, c.key, func(ctx context.Context) error {
		var err error
		reply, err = e.pick(ctx, c, res)
		return err
	})
	if err != nil {
		e.logger.Error("callback failed", "bot_id", c.key.BotID, "user_id", c.key.UserID, "err", err)
		e.metrics.FlowError(c.key.BotID, "", "state")
		return e.genericError(c)
	}
	return reply
}

func (e *Engine) pick(ctx context.Context, c conversation, res callback.Result) (domain.Reply, error) {
	state, err := e.sessions.Store().Load(ctx, c.key)
	if errors.Is(err, domain.ErrStateNotFound) {
		return c.reply(domain.TextInvalidCallback), nil
	}
	if err != nil {
		return domain.Reply{}, e.reset(ctx, c, err)
	}

	// Buttons of an earlier step are stale once the wizard moved on.
	if flow, ok := c.spec.Flow(state.FlowID); ok && state.StepIndex >= 0 && state.StepIndex < len(flow.Steps) {
		if flow.Steps[state.StepIndex].Var != res.Var {
			return c.reply(domain.TextInvalidCallback), nil
		}
	}
	return e.advance(ctx, c, state, res.Value)
}
