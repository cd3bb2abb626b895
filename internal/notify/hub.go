// Package notify provides the in-process notification hub. The core emits
// events through it and watchers such as the WebSocket stream and the CLI
// watch command receive them on channels.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/types"
)

// WatcherBuffer is the capacity of each watcher channel
const WatcherBuffer = 100

// ErrorPayload is the body of an error event
type ErrorPayload struct {
	Type    errors.ErrorType `json:"type"`
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Path    string           `json:"path,omitempty"`
	Entity  string           `json:"entity,omitempty"`
}

// Hub fans events out to watchers. Sends never block: a watcher whose
// channel is full misses the event.
type Hub struct {
	mutex    sync.RWMutex
	watchers []chan types.Event
	closed   bool
	sent     atomic.Int64
	dropped  atomic.Int64
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		watchers: make([]chan types.Event, 0),
	}
}

// Notify implements interfaces.Notifier
func (h *Hub) Notify(eventType types.EventType, payload interface{}) {
	event := types.Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.sent.Add(1)
	for _, watcher := range h.watchers {
		select {
		case watcher <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// NotifyError implements errors.Notifier by emitting an error event
func (h *Hub) NotifyError(_ context.Context, err *errors.CharosterError) {
	if err == nil {
		return
	}
	h.Notify(types.EventTypeError, ErrorPayload{
		Type:    err.Type,
		Code:    err.Code,
		Message: err.Error(),
		Path:    err.Path,
		Entity:  err.Entity,
	})
}

// Watch returns a channel that receives every event
func (h *Hub) Watch() <-chan types.Event {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	ch := make(chan types.Event, WatcherBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	h.watchers = append(h.watchers, ch)
	return ch
}

// Unwatch removes a watcher channel and closes it
func (h *Hub) Unwatch(ch <-chan types.Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for i, watcher := range h.watchers {
		if watcher == ch {
			close(watcher)
			h.watchers = append(h.watchers[:i], h.watchers[i+1:]...)
			break
		}
	}
}

// Close closes every watcher channel
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, watcher := range h.watchers {
		close(watcher)
	}
	h.watchers = nil
	h.closed = true
}

// Watchers returns the number of active watchers
func (h *Hub) Watchers() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.watchers)
}

// Stats returns the number of notifications sent and of deliveries dropped
func (h *Hub) Stats() (sent, dropped int64) {
	return h.sent.Load(), h.dropped.Load()
}
