//go:build tinygo

package irq

import "runtime/interrupt"

// State is the saved mask state returned by Disable.
type State = interrupt.State

// Line is one interrupt source. On a microcontroller the handler already
// runs with interrupts masked, so Serve calls it directly and Disable masks
// globally.
type Line struct{}

// Serve runs h as the interrupt context of this line.
func (l *Line) Serve(h Handler) {
	h()
}

// Disable masks interrupts and returns the previous state.
func (l *Line) Disable() State {
	return interrupt.Disable()
}

// Restore restores the interrupt state saved by Disable.
func (l *Line) Restore(state State) {
	interrupt.Restore(state)
}
