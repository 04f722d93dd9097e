package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/logic/panel"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

const (
	sseHeartbeat  = 30 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsPongWait    = 60 * time.Second
	wsWriteWait   = 10 * time.Second
	wsReadLimit   = 4096
	defaultPushHz = 10
	maxBodyBytes  = 1 << 20
)

// Handlers holds dependencies for HTTP handlers. Handlers never call the
// motion controller: they raise requests on the shared record and the scan
// loop acts on them.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Shared       *telemetry.Shared
	Panel        *panel.Menu
	PushInterval time.Duration // websocket frame period
	clock        clock.Clock
	staticFS     fs.FS
	upgrader     websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, shared *telemetry.Shared, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Shared:       shared,
		Panel:        panel.New(shared),
		PushInterval: time.Second / defaultPushHz,
		clock:        clock.System{},
		staticFS:     staticFS,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // LAN appliance
		},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleTelemetry returns the current telemetry frame.
func (h *Handlers) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Shared.Frame(h.clock.Now()))
}

// HandleStart handles POST /start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	switch h.Shared.Status() {
	case telemetry.Run:
		http.Error(w, "scan already in progress", http.StatusConflict)
		return
	case telemetry.Safe:
		http.Error(w, "motor fault, reset required", http.StatusConflict)
		return
	}
	h.Shared.RequestStart()
	h.Broadcaster.BroadcastMsg("Scan start requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// HandleStop handles POST /stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.Shared.RequestStop()
	h.Broadcaster.Broadcast("warn", "Stop requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// HandleReset handles POST /reset.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if h.Shared.Status() == telemetry.Run {
		http.Error(w, "stop the scan before resetting", http.StatusConflict)
		return
	}
	h.Shared.RequestReset()
	h.Broadcaster.BroadcastMsg("Reset requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// HandleSettings handles POST /settings. The new targets apply to the next
// scan.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var s telemetry.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateSettings(s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Shared.SetSettings(s)
	debug.Verbose("Web: settings %.2fm at %.3fm/s", s.ScanLength, s.ScanSpeed)
	writeJSON(w, http.StatusOK, s)
}

// ValidateSettings checks targets against the operator adjustment bounds.
func ValidateSettings(s telemetry.Settings) error {
	if math.IsNaN(s.ScanLength) || math.IsNaN(s.ScanSpeed) {
		return fmt.Errorf("scan_length and scan_speed must be numbers")
	}
	if s.ScanLength < panel.MinLength || s.ScanLength > panel.MaxLength {
		return fmt.Errorf("scan_length must be between %.2f and %.2f", panel.MinLength, panel.MaxLength)
	}
	if s.ScanSpeed < panel.MinSpeed || s.ScanSpeed > panel.MaxSpeed {
		return fmt.Errorf("scan_speed must be between %.3f and %.3f", panel.MinSpeed, panel.MaxSpeed)
	}
	return nil
}

// PanelState is the menu state reported by GET /panel.
type PanelState struct {
	Mode     string             `json:"mode"`
	Selected string             `json:"selected"`
	Settings telemetry.Settings `json:"settings"`
}

func (h *Handlers) panelState() PanelState {
	return PanelState{
		Mode:     h.Panel.Mode().String(),
		Selected: h.Panel.Selected().String(),
		Settings: h.Shared.Settings(),
	}
}

// HandlePanel handles GET /panel.
func (h *Handlers) HandlePanel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.panelState())
}

// HandlePanelAction handles POST /panel/{action}: a remote selector switch.
// Actions are up, down, select and emergency.
func (h *Handlers) HandlePanelAction(w http.ResponseWriter, r *http.Request) {
	switch action := r.PathValue("action"); action {
	case "up":
		h.Panel.Navigate(true)
	case "down":
		h.Panel.Navigate(false)
	case "select":
		h.Panel.Select()
	case "emergency":
		h.Panel.Emergency()
		h.Broadcaster.Broadcast("warn", "Emergency stop")
	default:
		http.Error(w, fmt.Sprintf("unknown panel action %q", action), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.panelState())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleWebSocket handles GET /ws: it pushes a telemetry frame every
// PushInterval until the client disconnects. Incoming messages are ignored.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("Web: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(wsReadLimit)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					debug.Verbose("Web: websocket read: %v", err)
				}
				return
			}
		}
	}()

	push := time.NewTicker(h.PushInterval)
	defer push.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(h.Shared.Frame(h.clock.Now()))
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-push.C:
			if err := send(); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
