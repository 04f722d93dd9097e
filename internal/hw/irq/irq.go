// Package irq models an interrupt source shared between a handler context
// and the cooperative polling loop.
//
// Handlers run through Line.Serve. The polling side brackets multi-field
// reads or critical writes with Disable/Restore, which guarantees the
// handler is neither running nor able to start until Restore.
package irq

// Handler is an interrupt service routine. It must not block or allocate.
type Handler func()
