package action

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ResultKind classifies the outcome of a successful action.
type ResultKind string

const (
	// ResultNone is an action that ran without producing anything user visible.
	ResultNone ResultKind = "none"
	// ResultReply carries a message for the user.
	ResultReply ResultKind = "reply"
	// ResultBlocked stops the remaining actions and answers with Reply.
	ResultBlocked ResultKind = "blocked"
)

// Result is the outcome of one action.
type Result struct {
	Kind  ResultKind
	Reply *domain.Reply
	// Data holds action specific details such as affected rows or a campaign id.
	Data map[string]any
}

// Outcome is the outcome of an action list.
type Outcome struct {
	// Reply is the first reply produced, or the blocking reply.
	Reply    *domain.Reply
	Blocked  bool
	Executed int
	// Err is the failure that stopped the list.
	Err error
}

// Executor runs the actions of one flow execution against its own context.
// It is not safe for concurrent use.
type Executor struct {
	engine  *Engine
	subject Subject
	vars    map[string]any
}

// Context returns the live execution context.
func (x *Executor) Context() map[string]any {
	return x.vars
}

// Execute runs a single action. Panics inside a handler are recovered into an *Error.
func (x *Executor) Execute(ctx context.Context, a domain.Action) (res Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		status := "ok"
		switch {
		case err != nil:
			status = "error"
			err = &Error{Kind: a.Kind, Tag: a.Tag, Err: err}
			x.engine.logger.Error("action failed",
				"bot_id", x.subject.BotID,
				"kind", a.Kind,
				"tag", a.Tag,
				"params", a.Params,
				"err", err,
			)
			res = Result{}
		case res.Kind == ResultBlocked:
			status = "blocked"
		}
		x.engine.metrics.Action(kindLabel(a), status, time.Since(start))
	}()

	switch a.Kind {
	case domain.ActionSQLQuery:
		return x.sqlQuery(ctx, a.Params)
	case domain.ActionSQLExec:
		return x.sqlExec(ctx, a.Params)
	case domain.ActionReplyTemplate:
		return x.replyTemplate(ctx, a.Params)
	case domain.ActionBroadcast:
		return x.broadcast(ctx, a.Params)
	case domain.ActionRateLimit:
		return x.rateLimit(ctx, a.Params)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, a.Tag)
	}
}

// ExecuteAll runs actions in order, stopping at the first error or blocked result.
func (x *Executor) ExecuteAll(ctx context.Context, actions []domain.Action) Outcome {
	var out Outcome
	for _, a := range actions {
		res, err := x.Execute(ctx, a)
		out.Executed++
		if err != nil {
			out.Err = err
			return out
		}
		switch res.Kind {
		case ResultBlocked:
			out.Blocked = true
			out.Reply = res.Reply
			return out
		case ResultReply:
			if out.Reply == nil {
				out.Reply = res.Reply
			}
		}
	}
	return out
}

func kindLabel(a domain.Action) string {
	if a.Kind == domain.ActionUnknown {
		return "unknown"
	}
	return string(a.Kind)
}

// decode maps raw params onto out, accepting numbers and booleans written as strings.
func decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
