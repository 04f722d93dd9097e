package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/hw/encoder"
	"github.com/cjeanneret/ScanGo/internal/hw/indicator"
	"github.com/cjeanneret/ScanGo/internal/hw/stepclock"
	"github.com/cjeanneret/ScanGo/internal/logic/motion"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// DefaultPollInterval is the polling cadence of the loop.
const DefaultPollInterval = 10 * time.Millisecond

// ErrScanFaulted is returned by RunScan when the controller faulted mid-move.
var ErrScanFaulted = errors.New("scan aborted by motor fault")

// Config holds the loop parameters that do not come from the operator.
type Config struct {
	TotalDistance float64       // m, full carriage travel for one scan
	PollInterval  time.Duration // 0 selects DefaultPollInterval
	Forward       bool          // travel direction of a scan
}

// Loop is the cooperative polling context: it consumes operator requests,
// advances the velocity profile, refreshes the encoder velocity and
// publishes measurements. All controller calls happen on its goroutine.
type Loop struct {
	ctrl   *motion.Controller
	enc    *encoder.Encoder
	steps  *stepclock.Driver
	shared *telemetry.Shared
	clock  clock.Clock
	cfg    Config
	ind    indicator.Indicator

	lastErr error
}

// NewLoop wires a loop.
func NewLoop(ctrl *motion.Controller, enc *encoder.Encoder, steps *stepclock.Driver,
	shared *telemetry.Shared, clk clock.Clock, cfg Config) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Loop{
		ctrl:   ctrl,
		enc:    enc,
		steps:  steps,
		shared: shared,
		clock:  clk,
		cfg:    cfg,
	}
}

// Begin brings the machine to its idle state: motor safe, encoder zeroed at
// the home position, status Wait.
func (l *Loop) Begin() error {
	l.shared.SetStatus(telemetry.Home, "")
	if err := l.ctrl.Begin(); err != nil {
		l.shared.SetStatus(telemetry.Safe, err.Error())
		return err
	}
	if err := l.ctrl.SetDirection(l.cfg.Forward); err != nil {
		l.shared.SetStatus(telemetry.Safe, err.Error())
		return fmt.Errorf("set scan direction: %w", err)
	}
	l.enc.ResetPosition()
	l.shared.SetStatus(telemetry.Wait, "")
	l.publish()
	l.showStatus()
	debug.Info("Scan loop ready (travel %.3fm, poll %v)", l.cfg.TotalDistance, l.cfg.PollInterval)
	return nil
}

// Run polls until ctx is cancelled, then stops the motor.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := l.ctrl.Stop(); err != nil {
				return err
			}
			l.shared.SetStatus(telemetry.Stop, "shutdown")
			l.showStatus()
			return ctx.Err()
		case <-ticker.C:
			l.Cycle()
		}
	}
}

// RunScan requests one scan and polls until it finishes, faults or ctx is
// cancelled.
func (l *Loop) RunScan(ctx context.Context) error {
	debug.Section("Scan")
	l.shared.RequestStart()
	l.Cycle()
	if l.lastErr != nil {
		return l.lastErr
	}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for l.ctrl.IsRunning() {
		select {
		case <-ctx.Done():
			if err := l.ctrl.Stop(); err != nil {
				return err
			}
			l.shared.SetStatus(telemetry.Stop, "cancelled")
			return ctx.Err()
		case <-ticker.C:
			l.Cycle()
		}
	}
	if l.ctrl.IsError() {
		return fmt.Errorf("%w: %s", ErrScanFaulted, l.ctrl.FaultReason())
	}
	return l.lastErr
}

// LastError returns the error of the last refused start, if any.
func (l *Loop) LastError() error {
	return l.lastErr
}

// Cycle runs one polling pass. A stop or a fault discards any start
// request pending in the same pass.
func (l *Loop) Cycle() {
	if l.shared.TakeStopRequest() {
		l.stop(telemetry.Stop, "stop requested")
		l.shared.TakeStartRequest()
	}

	if l.ctrl.IsError() {
		if l.ctrl.IsRunning() {
			l.stop(telemetry.Safe, l.ctrl.FaultReason())
		} else if l.shared.Status() != telemetry.Safe {
			l.shared.SetStatus(telemetry.Safe, l.ctrl.FaultReason())
		}
		l.shared.TakeStartRequest()
	}

	if l.shared.TakeResetRequest() {
		l.reset()
	}

	if l.shared.TakeStartRequest() {
		l.start()
	}

	if l.ctrl.IsRunning() {
		l.ctrl.UpdateSpeed()
		if l.ctrl.Done() {
			l.stop(telemetry.Wait, "scan complete")
		}
	}
	l.enc.UpdateSpeed()
	l.publish()
	l.showStatus()
}

func (l *Loop) start() {
	if l.ctrl.IsRunning() {
		debug.Verbose("Scan: start ignored, already running")
		return
	}
	s := l.shared.Settings()
	l.ctrl.SetMotionSettings(s.ScanSpeed, s.ScanLength, l.cfg.TotalDistance)
	l.enc.ResetPosition()

	if err := l.ctrl.Start(); err != nil {
		l.lastErr = err
		st := telemetry.Wait
		if l.ctrl.IsError() {
			st = telemetry.Safe
		}
		l.shared.SetStatus(st, err.Error())
		debug.Error(err)
		return
	}
	l.lastErr = nil
	l.shared.SetStatus(telemetry.Run, "")
	debug.Info("Scan started: %.2fm at %.3fm/s, planned %.2fs", s.ScanLength, s.ScanSpeed, l.ctrl.TotalTime())
}

// reset clears a fault once the motor is stopped. A reset while running is
// refused, the operator has to stop first.
func (l *Loop) reset() {
	if l.ctrl.IsRunning() {
		debug.Verbose("Scan: reset ignored while running")
		return
	}
	l.ctrl.ResetMotor()
	l.lastErr = nil
	l.shared.SetStatus(telemetry.Wait, "")
	debug.Info("Scan: fault cleared")
}

func (l *Loop) stop(st telemetry.Status, msg string) {
	if err := l.ctrl.Stop(); err != nil {
		debug.Error(err)
		l.shared.SetStatus(telemetry.Safe, err.Error())
		return
	}
	l.shared.SetStatus(st, msg)
	debug.Info("Scan stopped: %s", msg)
}

func (l *Loop) publish() {
	snap := l.enc.Snapshot()
	speed := l.enc.Speed()
	l.shared.Publish(telemetry.Measurements{
		Position:    snap.Position,
		Speed:       speed,
		Direction:   snap.Direction.String(),
		TargetSpeed: l.ctrl.TargetSpeed(),
		Period:      l.steps.Period(),
		Steps:       l.steps.Steps(),
		Elapsed:     l.ctrl.ElapsedTime(),
		TotalTime:   l.ctrl.TotalTime(),
		Phase:       l.ctrl.Phase(),
		Motor:       l.ctrl.State().String(),
	})
	debug.Encoder(snap.Position, speed, snap.Direction.String())
}
