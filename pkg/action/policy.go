package action

import (
	"context"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/ratelimit"
)

func (x *Executor) rateLimit(ctx context.Context, raw map[string]any) (Result, error) {
	if x.engine.policy == nil {
		x.engine.logger.Warn("rate limit bypassed", "bot_id", x.subject.BotID, "reason", "no policy configured")
		return Result{Kind: ResultNone, Data: map[string]any{"bypassed": true}}, nil
	}
	d := x.engine.policy.Check(ctx, ratelimit.Subject{
		BotID:  x.subject.BotID,
		UserID: x.subject.UserID,
		ChatID: x.subject.ChatID,
	}, raw, x.vars)
	if d.Allowed {
		return Result{Kind: ResultNone, Data: map[string]any{"bypassed": d.Bypassed}}, nil
	}
	return Result{
		Kind:  ResultBlocked,
		Reply: &domain.Reply{Text: d.Message, ParseMode: x.subject.ParseMode},
		Data:  map[string]any{"retry_in": d.RetryIn.Seconds()},
	}, nil
}
