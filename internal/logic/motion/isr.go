package motion

import (
	"errors"
	"sync/atomic"
)

// ErrAlreadyRegistered is returned by a second Register.
var ErrAlreadyRegistered = errors.New("a motion controller is already registered")

// The step timer interrupt cannot carry an argument, so it reaches the
// controller through this single process-wide registration. This is forced
// by the hardware, not a pattern to reuse.
var instance atomic.Pointer[Controller]

// Register installs c as the target of StepISR. It must be called exactly
// once at startup.
func Register(c *Controller) error {
	if !instance.CompareAndSwap(nil, c) {
		return ErrAlreadyRegistered
	}
	return nil
}

// StepISR is the fixed trampoline bound to the step timer interrupt.
func StepISR() {
	if c := instance.Load(); c != nil && c.running.Load() {
		c.steps.Fire()
	}
}
