package engine

// Metrics exposes the gateway's status/telemetry counters in Prometheus
// text format:
//
//	codeorb_bytes_received_total       – counter: bytes read from the link
//	codeorb_content_none_total         – counter: None frames received
//	codeorb_rerequests_total           – counter: poll re-requests issued while awaiting a command reply
//	codeorb_protocol_errors_total      – counter: illegal bytes dropped by the decoder
//	codeorb_handshake_attempts_total   – counter: TargetInit handshakes attempted
//	codeorb_target_online              – gauge:   1 when the last handshake succeeded, 0 otherwise
//	codeorb_link_online                – gauge:   1 when the serial link is open, 0 otherwise
//
// All fields are updated atomically so they can be read concurrently from
// an HTTP handler without holding any additional lock.

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// Metrics holds every counter and gauge the gateway exposes. The zero value
// is ready to use.
type Metrics struct {
	BytesReceived     atomic.Int64
	ContentNone       atomic.Int64
	ReRequests        atomic.Int64
	ProtocolErrors    atomic.Int64
	HandshakeAttempts atomic.Int64

	TargetOnline atomic.Int64
	LinkOnline   atomic.Int64
}

// NewMetrics allocates a new Metrics value with all counters at zero.
func NewMetrics() *Metrics {
	return &Metrics{}
}

type metricLine struct {
	help  string
	kind  string
	name  string
	value int64
}

func (m *Metrics) snapshot() []metricLine {
	return []metricLine{
		{"Total number of bytes read from the serial link.", "counter", "codeorb_bytes_received_total", m.BytesReceived.Load()},
		{"Total number of None (keep-alive) frames received.", "counter", "codeorb_content_none_total", m.ContentNone.Load()},
		{"Total number of poll re-requests issued while awaiting a command reply.", "counter", "codeorb_rerequests_total", m.ReRequests.Load()},
		{"Total number of illegal bytes dropped mid-fragment by the decoder.", "counter", "codeorb_protocol_errors_total", m.ProtocolErrors.Load()},
		{"Total number of target handshakes attempted.", "counter", "codeorb_handshake_attempts_total", m.HandshakeAttempts.Load()},
		{"1 when the most recent handshake succeeded and no TargetInit transition has occurred since, 0 otherwise.", "gauge", "codeorb_target_online", m.TargetOnline.Load()},
		{"1 when the serial link is currently open, 0 otherwise.", "gauge", "codeorb_link_online", m.LinkOnline.Load()},
	}
}

// Handler returns an http.Handler that writes every gateway metric in the
// Prometheus text exposition format on every GET request.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		writeMetrics(w, m.snapshot())
	})
}

func writeMetrics(w io.Writer, lines []metricLine) {
	for _, l := range lines {
		fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.kind)
		fmt.Fprintf(w, "%s %d\n", l.name, l.value)
	}
}
