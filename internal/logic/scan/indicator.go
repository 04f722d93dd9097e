package scan

import (
	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/indicator"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// StatusPatterns maps each machine status to its indicator pattern.
var StatusPatterns = map[telemetry.Status]indicator.Pattern{
	telemetry.Startup: {Color: indicator.Yellow, Blink: true},
	telemetry.Home:    {Color: indicator.Green, Blink: true},
	telemetry.Wait:    {Color: indicator.Yellow},
	telemetry.Run:     {Color: indicator.Green},
	telemetry.Stop:    {Color: indicator.Red, Blink: true},
	telemetry.Safe:    {Color: indicator.Red},
}

// SetIndicator attaches a status light, refreshed on every cycle.
func (l *Loop) SetIndicator(ind indicator.Indicator) {
	l.ind = ind
	l.showStatus()
}

func (l *Loop) showStatus() {
	if l.ind == nil {
		return
	}
	p, ok := StatusPatterns[l.shared.Status()]
	if !ok {
		p = indicator.Pattern{Color: indicator.Red, Blink: true}
	}
	if err := l.ind.Show(p); err != nil {
		debug.Error(err)
		return
	}
	if err := l.ind.Update(); err != nil {
		debug.Error(err)
	}
}
