// Package swt implements the single-wire transport: the framing and
// byte-level state machine that multiplexes process-tree snapshots, log
// lines, and command responses from an embedded target over one half-duplex
// serial byte stream.
//
// The wire alphabet and frame shape are fixed by the target firmware; this
// package only decodes and encodes it. It never touches a device: callers
// feed it bytes read from a link.Link and it hands back decoded Frame
// values.
package swt

import "fmt"

// ContentClass identifies which of the target's independent content streams
// a Frame belongs to.
type ContentClass uint8

// Content id bytes as they appear on the wire (target→host only; a
// host→target command frame carries IdContentScToTaCmd instead).
const (
	ContentNone ContentClass = 0x15
	ContentProc ContentClass = 0x11
	ContentLog  ContentClass = 0x12
	ContentCmd  ContentClass = 0x13
)

// String renders the content class the way the target's own diagnostics do.
func (c ContentClass) String() string {
	switch c {
	case ContentNone:
		return "None"
	case ContentProc:
		return "Proc"
	case ContentLog:
		return "Log"
	case ContentCmd:
		return "Cmd"
	default:
		return fmt.Sprintf("ContentClass(0x%02X)", uint8(c))
	}
}

// Flow and framing bytes. FlowSchedToTarget and IdContentScToTaCmd only ever
// appear in host→target command frames; the rest appear in both directions
// or target→host only as noted.
const (
	FlowSchedToTarget  byte = 0x0B // host→target: precedes a command frame
	FlowTargetToSched  byte = 0x0C // both: host→target poll byte; target→host marker before an unsolicited frame
	IdContentScToTaCmd byte = 0x1A // host→target: command-frame content id
	cmdTerminator      byte = 0x00 // host→target: command text terminator
	IdContentEnd       byte = 0x17 // both: end of frame
	IdContentCut       byte = 0x0F // target→host: abort current fragment
)

// FragmentMax is the maximum number of payload bytes retained per content
// class while reassembling a fragment. Bytes beyond this are discarded
// silently; the frame is still emitted (truncated), never treated as an
// error.
const FragmentMax = 4096

// isPayloadByte reports whether ch may legally appear inside a frame's
// payload: the printable ASCII range, plus ESC, TAB, CR, and LF.
func isPayloadByte(ch byte) bool {
	switch ch {
	case 0x1B, 0x09, 0x0D, 0x0A: // ESC, TAB, CR, LF
		return true
	}
	return ch >= 0x20 && ch < 0x7F
}

// Frame is one decoded (content_id, payload) unit.
type Frame struct {
	ContentID ContentClass
	Payload   []byte
	// Unsolicited is true iff the content id byte arrived immediately after
	// a poll byte (FlowTargetToSched), i.e. with no command outstanding.
	Unsolicited bool
}

// String renders a Frame for logging, truncating long payloads.
func (f Frame) String() string {
	p := f.Payload
	if len(p) > 32 {
		p = p[:32]
	}
	return fmt.Sprintf("Frame{%s %q unsolicited=%t}", f.ContentID, p, f.Unsolicited)
}
