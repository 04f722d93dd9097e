//go:build linux && !tinygo

package stepclock

import (
	"github.com/cjeanneret/ScanGo/internal/debug"
	"golang.org/x/sys/unix"
)

// timerNice is the niceness requested for the timer thread.
const timerNice = -20

// raisePriority lowers the niceness of the calling (locked) thread.
// Without CAP_SYS_NICE this fails and the timer runs at normal priority.
func raisePriority() {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, timerNice); err != nil {
		debug.Verbose("step clock: cannot raise priority of thread %d: %v", tid, err)
		return
	}
	debug.Verbose("step clock: thread %d running at nice %d", tid, timerNice)
}
