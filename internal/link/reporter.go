package link

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// DefaultInterval is the frame rate of a Reporter.
const DefaultInterval = 100 * time.Millisecond

// OpenSerial opens portName at baud, 8N1.
func OpenSerial(portName string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	debug.Info("Telemetry link on %s at %d baud", portName, baud)
	return port, nil
}

// Reporter periodically writes the shared telemetry as frames.
type Reporter struct {
	w        io.Writer
	shared   *telemetry.Shared
	clock    clock.Clock
	interval time.Duration
}

// NewReporter returns a reporter writing to w. interval <= 0 selects
// DefaultInterval.
func NewReporter(w io.Writer, shared *telemetry.Shared, clk clock.Clock, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Reporter{w: w, shared: shared, clock: clk, interval: interval}
}

// Send writes one frame now.
func (r *Reporter) Send() error {
	packet, err := Encode(r.shared.Frame(r.clock.Now()))
	if err != nil {
		return err
	}
	if _, err := r.w.Write(packet); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Run sends a frame every interval until ctx is cancelled or a write fails.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Send(); err != nil {
				debug.Error(err)
				return err
			}
		}
	}
}
