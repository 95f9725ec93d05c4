package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Broadcaster implements ports.Broadcaster by pushing campaigns onto a Redis list
// consumed by the delivery workers.
type Broadcaster struct {
	client *backend.Client
	prefix string
}

// NewBroadcaster creates a broadcaster writing under prefix.
func NewBroadcaster(client *backend.Client, prefix string) *Broadcaster {
	return &Broadcaster{client: client, prefix: prefix}
}

// QueueKey is the list the campaigns are pushed to.
func (b *Broadcaster) QueueKey() string {
	return b.prefix + "broadcast:queue"
}

// Schedule implements ports.Broadcaster.
func (b *Broadcaster) Schedule(ctx context.Context, campaign ports.Campaign) (string, error) {
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(campaign)
	if err != nil {
		return "", fmt.Errorf("failed to marshal campaign: %w", err)
	}
	if err := b.client.LPush(ctx, b.QueueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue campaign: %w", err)
	}
	return campaign.ID, nil
}
