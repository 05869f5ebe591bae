package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/FeuGo/internal/controller"
	"github.com/cjeanneret/FeuGo/internal/hw/gpio"
	"github.com/cjeanneret/FeuGo/internal/hw/stepper"
	"github.com/cjeanneret/FeuGo/internal/logic/motion"
	"github.com/cjeanneret/FeuGo/internal/logic/signal"
)

// nullPort is a serial stand-in: no input pending, output discarded.
type nullPort struct{ out bytes.Buffer }

func (p *nullPort) Read(b []byte) (int, error)  { return 0, nil }
func (p *nullPort) Write(b []byte) (int, error) { return p.out.Write(b) }

func newTestHandlers(t *testing.T) (*Handlers, *controller.Loop, *nullPort) {
	t.Helper()
	port := &nullPort{}
	say := func(format string, args ...interface{}) {}

	sched := signal.New(signal.Timing{
		SteadyMs:        300,
		BlinkMs:         200,
		YellowMs:        200,
		BlinkIntervalMs: 50,
		LeadMs:          100,
	}, 0, say)
	motor := stepper.NewStepper(&gpio.MockDriver{}, stepper.Config{
		StepPin:     1,
		DirPin:      2,
		StepsPerRev: 12,
	})
	turret := motion.NewController(motor, 3, say)
	loop := controller.New(port, sched, turret, nil, func() uint32 { return 0 })

	h := NewHandlers(NewStatusBroadcaster(), loop, fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>feugo</html>")},
	})
	return h, loop, port
}

func TestHandleState(t *testing.T) {
	h, loop, _ := newTestHandlers(t)
	loop.Step()

	rec := httptest.NewRecorder()
	h.HandleState(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var dto stateDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	require.Len(t, dto.Lamps, 4)
	assert.Equal(t, 1, dto.Active)
	assert.Equal(t, "1234", dto.Order)
	assert.Equal(t, "idle", dto.Motion)
	assert.True(t, dto.Lamps[0].Green, "active head green")
	assert.Equal(t, 1, dto.Lamps[0].Signal, "signals numbered from 1")
	assert.True(t, dto.Lamps[1].Red)
}

func TestHandleCommand_Queued(t *testing.T) {
	h, loop, port := newTestHandlers(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/command",
		strings.NewReader(`{"line":"P"}`))
	h.HandleCommand(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"queued"}`, rec.Body.String())

	// The loop consumes the injected line on its next iteration.
	loop.Step()
	assert.Contains(t, port.out.String(), "PAUSED")
}

func TestHandleCommand_InvalidLine(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/command",
		strings.NewReader(`{"line":"X42"}`))
	h.HandleCommand(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommand_BadJSON(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/command",
		strings.NewReader("not json"))
	h.HandleCommand(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeIndex(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.ServeIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "feugo")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestHandleStatusStream(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/status/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleStatusStream(rec, req)
		close(done)
	}()

	// Give the handler time to subscribe, then push one event through.
	time.Sleep(20 * time.Millisecond)
	h.Broadcaster.BroadcastMsg("signal changed")
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, ": connected")
	assert.Contains(t, body, "data: ")
	assert.Contains(t, body, "signal changed")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
