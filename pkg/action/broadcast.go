package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/aretw0/botfactory/pkg/template"
)

type broadcastParams struct {
	Message    string         `mapstructure:"message"`
	Audience   map[string]any `mapstructure:"audience"`
	ScheduleAt string         `mapstructure:"schedule_at"`
	ResultVar  string         `mapstructure:"result_var"`
}

// broadcast hands a campaign to the delivery subsystem and returns without waiting.
func (x *Executor) broadcast(ctx context.Context, raw map[string]any) (Result, error) {
	var p broadcastParams
	if err := decode(raw, &p); err != nil {
		return Result{}, err
	}
	message := strings.TrimSpace(template.Expand(p.Message, x.vars))
	if message == "" {
		return Result{}, fmt.Errorf("%w: broadcast message is empty", ErrInvalidParams)
	}
	if x.engine.broadcaster == nil {
		return Result{}, fmt.Errorf("%w: broadcaster", ErrNotConfigured)
	}

	campaign := ports.Campaign{
		BotID:     x.subject.BotID,
		CreatedBy: x.subject.UserID,
		Message:   message,
		Audience:  p.Audience,
	}
	if p.ScheduleAt != "" {
		at, err := time.Parse(time.RFC3339, template.Expand(p.ScheduleAt, x.vars))
		if err != nil {
			return Result{}, fmt.Errorf("%w: schedule_at: %v", ErrInvalidParams, err)
		}
		campaign.ScheduleAt = &at
	}

	id, err := x.engine.broadcaster.Schedule(ctx, campaign)
	if err != nil {
		return Result{}, fmt.Errorf("schedule broadcast: %w", err)
	}
	if p.ResultVar != "" {
		x.vars[p.ResultVar] = id
	}
	return Result{Kind: ResultNone, Data: map[string]any{"campaign_id": id}}, nil
}
