package engine

import (
	"sync"
	"time"
)

// diagnosticsCap bounds the ring buffer; CodeOrb writes no persistent state,
// so history is kept only for as long as the process runs and only as far
// back as this many events.
const diagnosticsCap = 256

// DiagEvent is one state transition or protocol event worth surfacing to an
// operator inspecting the gateway, the in-memory, structured successor to
// the original scheduler's processInfo text dump.
type DiagEvent struct {
	At     time.Time
	Kind   string // "state", "protocol_error", "rerequest", "handshake"
	Detail string
}

// diagnostics is an in-memory ring buffer of recent DiagEvents. It never
// touches disk: a restart loses history, which is the point.
type diagnostics struct {
	mu     sync.Mutex
	events []DiagEvent
	next   int
	full   bool
}

func newDiagnostics() *diagnostics {
	return &diagnostics{events: make([]DiagEvent, diagnosticsCap)}
}

func (d *diagnostics) record(kind, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events[d.next] = DiagEvent{At: time.Now(), Kind: kind, Detail: detail}
	d.next = (d.next + 1) % diagnosticsCap
	if d.next == 0 {
		d.full = true
	}
}

// Recent returns recorded events in oldest-to-newest order.
func (d *diagnostics) Recent() []DiagEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.full {
		out := make([]DiagEvent, d.next)
		copy(out, d.events[:d.next])
		return out
	}
	out := make([]DiagEvent, diagnosticsCap)
	copy(out, d.events[d.next:])
	copy(out[diagnosticsCap-d.next:], d.events[:d.next])
	return out
}
