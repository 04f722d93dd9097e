package web

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// StatusEvent is one message on the SSE stream.
type StatusEvent struct {
	Time   string `json:"t"`
	Level  string `json:"l,omitempty"`
	Msg    string `json:"msg"`
	Status string `json:"status,omitempty"`
}

// StatusBroadcaster fans status messages out to the SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	clock   clock.Clock
}

// NewStatusBroadcaster creates a broadcaster stamping events with the
// system clock.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		clock:   clock.System{},
	}
}

// Subscribe returns a channel of JSON events and its cleanup function.
// The caller must call cleanup when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends a log line to every client. Slow clients miss messages.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is Broadcast at level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastStatus announces a machine status change.
func (b *StatusBroadcaster) BroadcastStatus(status, msg string) {
	b.send(StatusEvent{Level: "status", Msg: msg, Status: status})
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = b.clock.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// WatchStatus polls the shared status and broadcasts every change until
// ctx is cancelled.
func (b *StatusBroadcaster) WatchStatus(ctx context.Context, shared *telemetry.Shared, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f := shared.Frame(time.Time{})
			if f.Status != last {
				last = f.Status
				b.BroadcastStatus(f.Status, f.Message)
			}
		}
	}
}

// BroadcastWriter adapts the broadcaster to io.Writer so the debug log can
// be teed to the browser.
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
