package web

import (
	"strings"
	"sync"
	"time"
)

// StatusEvent is one controller status line. The SSE handler marshals
// it at the edge; subscribers see typed events.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster fans controller status lines out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan StatusEvent]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan StatusEvent]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast events and a
// cleanup function. The caller must call the returned cleanup when done
// (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends an event to all subscribed clients.
// Slow clients may miss events (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	ev := StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// channel full, skip
		}
	}
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastWriter wraps the broadcaster as an io.Writer so debug output
// can be mirrored to SSE clients via debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
