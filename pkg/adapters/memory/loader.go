package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/botfactory/pkg/domain"
)

// Loader implements ports.SpecLoader using an in-memory map.
// The most recently added version of a bot is its latest.
type Loader struct {
	mu    sync.RWMutex
	specs map[string][]*domain.BotSpec
}

// NewLoader creates a Loader holding the given specs. Each spec must carry its BotID.
func NewLoader(specs ...*domain.BotSpec) (*Loader, error) {
	l := &Loader{specs: make(map[string][]*domain.BotSpec)}
	for _, s := range specs {
		if err := l.Put(s); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewFromJSON creates a Loader from raw JSON documents keyed by bot id.
// This handles parsing automatically, improving DX for tests.
func NewFromJSON(data map[string]string) (*Loader, error) {
	l := &Loader{specs: make(map[string][]*domain.BotSpec)}
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var spec domain.BotSpec
		if err := json.Unmarshal([]byte(data[id]), &spec); err != nil {
			return nil, fmt.Errorf("failed to parse spec %s: %w", id, err)
		}
		spec.BotID = id
		if err := l.Put(&spec); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put registers spec as the latest version of its bot.
func (l *Loader) Put(spec *domain.BotSpec) error {
	if spec == nil || spec.BotID == "" {
		return fmt.Errorf("spec missing bot id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs[spec.BotID] = append(l.specs[spec.BotID], spec)
	return nil
}

// LoadSpec implements ports.SpecLoader.
func (l *Loader) LoadSpec(ctx context.Context, botID, version string) (*domain.BotSpec, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	versions := l.specs[botID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: bot %s", domain.ErrSpecNotFound, botID)
	}
	if version == "" {
		return versions[len(versions)-1], nil
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Version == version {
			return versions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: bot %s version %s", domain.ErrSpecNotFound, botID, version)
}

// Bots returns the registered bot ids in order.
func (l *Loader) Bots() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.specs))
	for id := range l.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
