package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/cjeanneret/FeuGo/internal/controller"
	"github.com/cjeanneret/FeuGo/internal/logic/signal"
	"github.com/cjeanneret/FeuGo/internal/protocol"
)

// lampDTO is the JSON shape of one signal head.
type lampDTO struct {
	Signal int  `json:"signal"` // 1-based
	Red    bool `json:"red"`
	Yellow bool `json:"yellow"`
	Green  bool `json:"green"`
}

// stateDTO is the JSON shape of GET /state.
type stateDTO struct {
	Lamps    []lampDTO `json:"lamps"`
	Active   int       `json:"active"`
	Order    string    `json:"order"`
	Pending  string    `json:"pending,omitempty"`
	Motion   string    `json:"motion"`
	Position int       `json:"position"`
}

// commandRequest is the JSON body of POST /command.
type commandRequest struct {
	Line string `json:"line"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Loop        *controller.Loop
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, loop *controller.Loop, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Loop:        loop,
		staticFS:    staticFS,
	}
}

// HandleState returns the controller snapshot as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	s := h.Loop.Snapshot()
	frame := s.Frame
	dto := stateDTO{
		Lamps: lo.Map(frame[:], func(l signal.Lamp, i int) lampDTO {
			return lampDTO{Signal: i + 1, Red: l.Red, Yellow: l.Yellow, Green: l.Green}
		}),
		Active:   s.Active,
		Order:    s.Order,
		Pending:  s.Pending,
		Motion:   s.Motion,
		Position: s.Position,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto)
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

// HandleCommand injects a protocol line into the control loop, exactly
// as if the supervisor had sent it over serial. The line is validated
// before injection so obvious garbage is rejected here instead of
// producing a serial-side diagnostic.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if _, err := protocol.Parse(req.Line); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.Loop.Inject(req.Line + "\n") {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
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

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			w.Write([]byte("data: " + string(data) + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
