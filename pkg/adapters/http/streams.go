package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/keel/pkg/domain"
)

// eventPayload is the JSON body of a server-sent lifecycle event.
type eventPayload struct {
	Type      domain.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Error     string           `json:"error,omitempty"`
}

type message struct {
	event domain.EventType
	data  string
}

// StreamManager fans controller events out to SSE clients.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan message]struct{}
	closed      bool
	logger      *slog.Logger
}

// NewStreamManager creates a manager without subscribers.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan message]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a client. The channel is closed by cancel or by Close.
func (sm *StreamManager) Subscribe() (<-chan message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan message, 10)
	if sm.closed {
		close(ch)
		return ch, func() {}
	}
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Publish encodes evt and delivers it to every subscriber.
func (sm *StreamManager) Publish(evt domain.Event) {
	payload := eventPayload{Type: evt.Type, Timestamp: evt.Timestamp}
	if evt.Err != nil {
		payload.Error = evt.Err.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("encoding event failed", "err", err)
		return
	}
	sm.broadcast(message{event: evt.Type, data: string(data)})
}

func (sm *StreamManager) broadcast(msg message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Slow client, drop.
			sm.logger.Warn("SSE client buffer full, dropping event", "event", msg.event)
		}
	}
}

// Count returns the number of connected clients.
func (sm *StreamManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Close disconnects every client and rejects new ones.
func (sm *StreamManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closed {
		return
	}
	sm.closed = true
	for ch := range sm.subscribers {
		delete(sm.subscribers, ch)
		close(ch)
	}
}
