//go:build !tinygo

package irq

import "sync"

// State is the saved mask state returned by Disable.
type State uintptr

// Line is one interrupt source. On a host the interrupt context is a
// goroutine, so masking is a lock held across the handler.
// Disable is not reentrant.
type Line struct {
	mu sync.Mutex
}

// Serve runs h as the interrupt context of this line.
func (l *Line) Serve(h Handler) {
	l.mu.Lock()
	h()
	l.mu.Unlock()
}

// Disable masks the line. It waits for an in-flight handler to return.
func (l *Line) Disable() State {
	l.mu.Lock()
	return 0
}

// Restore unmasks the line.
func (l *Line) Restore(State) {
	l.mu.Unlock()
}
