package http

import (
	"log/slog"
	"sync"

	"github.com/aretw0/botfactory/internal/logging"
)

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // session -> set of channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a listener for session. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(session string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[session]; !ok {
		sm.subscribers[session] = make(map[chan<- string]struct{})
	}
	sm.subscribers[session][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[session]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, session)
				}
			}
		})
	}
}

// HasSubscribers reports whether anyone listens to session.
func (sm *StreamManager) HasSubscribers(session string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[session]) > 0
}

// Broadcast sends msg to every listener of session without blocking.
func (sm *StreamManager) Broadcast(session string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[session] {
		select {
		case ch <- msg:
		default:
			// Slow client.
			sm.logger.Warn("SSE: client buffer full, dropping message", "session", session)
		}
	}
}
