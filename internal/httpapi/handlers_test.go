package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/NoOrientationProgramming/code-orb/internal/queue"
)

type fakeEngine struct {
	mu           sync.Mutex
	state        string
	targetOnline bool
	linkOnline   bool
	nextID       uint32
	lastText     string
	lastPrio     queue.Priority
	sendErr      error
	responses    map[uint32]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{state: "Main", responses: make(map[uint32]string)}
}

func (f *fakeEngine) CommandSendPriority(text string, prio queue.Priority) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.lastText, f.lastPrio = text, prio
	return f.nextID, nil
}

func (f *fakeEngine) CommandResponseGet(id uint32) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply, ok := f.responses[id]
	return reply, ok
}

func (f *fakeEngine) TargetOnline() bool { return f.targetOnline }
func (f *fakeEngine) LinkOnline() bool   { return f.linkOnline }
func (f *fakeEngine) State() string      { return f.state }

func TestHandleHealthz(t *testing.T) {
	srv := NewServer(newFakeEngine())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	eng := newFakeEngine()
	eng.targetOnline = true
	eng.state = "Main"
	srv := NewServer(eng)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.TargetOnline || got.State != "Main" {
		t.Errorf("got %+v", got)
	}
}

func TestHandleCommandSend_Success(t *testing.T) {
	eng := newFakeEngine()
	srv := NewServer(eng)

	body := bytes.NewBufferString(`{"text":"infoHelp"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	rec := httptest.NewRecorder()
	srv.handleCommandSend(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var got commandSendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("got id %d, want 1", got.ID)
	}
	if eng.lastText != "infoHelp" || eng.lastPrio != queue.PrioUser {
		t.Errorf("engine received text=%q prio=%v", eng.lastText, eng.lastPrio)
	}
}

func TestHandleCommandSend_SysLowPriority(t *testing.T) {
	eng := newFakeEngine()
	srv := NewServer(eng)

	body := bytes.NewBufferString(`{"text":"ping","priority":"sys_low"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	rec := httptest.NewRecorder()
	srv.handleCommandSend(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if eng.lastPrio != queue.PrioSysLow {
		t.Errorf("got priority %v, want PrioSysLow", eng.lastPrio)
	}
}

func TestHandleCommandSend_EmptyText(t *testing.T) {
	srv := NewServer(newFakeEngine())

	body := bytes.NewBufferString(`{"text":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	rec := httptest.NewRecorder()
	srv.handleCommandSend(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCommandSend_InvalidPriority(t *testing.T) {
	srv := NewServer(newFakeEngine())

	body := bytes.NewBufferString(`{"text":"x","priority":"sys_high"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	rec := httptest.NewRecorder()
	srv.handleCommandSend(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 rejecting sys_high, got %d", rec.Code)
	}
}

func TestHandleCommandSend_MalformedJSON(t *testing.T) {
	srv := NewServer(newFakeEngine())

	body := bytes.NewBufferString(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	rec := httptest.NewRecorder()
	srv.handleCommandSend(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCommandSend_QueueRejects(t *testing.T) {
	eng := newFakeEngine()
	eng.sendErr = queue.ErrQueueFull
	srv := NewServer(eng)

	body := bytes.NewBufferString(`{"text":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", body)
	rec := httptest.NewRecorder()
	srv.handleCommandSend(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
