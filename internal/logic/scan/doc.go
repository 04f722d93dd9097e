// Package scan runs the polling side of the stage: one goroutine that turns
// operator requests into controller calls and keeps the shared telemetry
// current while the step clock and the encoder run on their own.
package scan
