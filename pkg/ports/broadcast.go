package ports

import (
	"context"
	"time"
)

// Campaign is a broadcast request handed to the background delivery engine.
type Campaign struct {
	ID         string         `json:"id"`
	BotID      string         `json:"bot_id"`
	CreatedBy  string         `json:"created_by"`
	Message    string         `json:"message"`
	Audience   map[string]any `json:"audience,omitempty"`
	ScheduleAt *time.Time     `json:"schedule_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Broadcaster schedules a campaign without waiting for delivery.
type Broadcaster interface {
	// Schedule enqueues the campaign and returns its tracking identifier.
	Schedule(ctx context.Context, campaign Campaign) (string, error)
}
