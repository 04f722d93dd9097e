package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (profile, scan start/stop)
	LevelLive    = 2 // Live info (speed updates, encoder samples)
	LevelVerbose = 3 // Verbose (period math, state transitions)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[log.Logger]
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (profile timings, scan start/stop, faults)
// 2 = live info (target speed, position, velocity)
// 3 = verbose (step periods, clamping, state transitions)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	if debugLevel > LevelOff {
		logger.Store(log.New(os.Stdout, "[ScanGo] ", log.LstdFlags|log.Lmicroseconds))
	}
}

// SetOutput redirects debug output (e.g. to tee into the web status stream).
func SetOutput(w io.Writer) {
	if l := logger.Load(); l != nil {
		l.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func printf(minLevel int, format string, args ...interface{}) {
	if Level() < minLevel {
		return
	}
	if l := logger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] "+format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	printf(LevelInfo, "═══════════════════════════════════════")
	printf(LevelInfo, "  %s", title)
	printf(LevelInfo, "═══════════════════════════════════════")
}

// Profile prints the derived timings of a motion profile (level 1).
func Profile(accel, cruise, decel, total float64) {
	printf(LevelInfo, "[INFO] Profile: accel=%.3fs cruise=%.3fs decel=%.3fs total=%.3fs", accel, cruise, decel, total)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] "+format, args...)
}

// Encoder prints an encoder sample (level 2).
func Encoder(position, speed float64, direction string) {
	printf(LevelLive, "[LIVE] Encoder: pos=%.4fm speed=%.4fm/s dir=%s", position, speed, direction)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "[VERBOSE] %s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printf(LevelVerbose, "  %s", name)
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	printf(LevelVerbose, "[VERBOSE] Step %d: %s", num, description)
}

// Period prints a speed to timer period conversion (level 3).
func Period(speed float64, ticks uint32, clamped bool) {
	if clamped {
		printf(LevelVerbose, "[VERBOSE] Period: speed=%.4fm/s -> %d ticks (clamped)", speed, ticks)
		return
	}
	printf(LevelVerbose, "[VERBOSE] Period: speed=%.4fm/s -> %d ticks", speed, ticks)
}

// State prints a motor state transition (level 3).
func State(from, to string) {
	printf(LevelVerbose, "[VERBOSE] Motor state: %s -> %s", from, to)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] "+format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	printf(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] %v", err)
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
