package swt

import "time"

// state is the decoder's internal byte-wait state.
type state uint8

const (
	stateContentWait state = iota
	stateDataReceive
)

// Event reports what happened while decoding a single byte, distinguishing
// "nothing yet" from a completed frame from a protocol violation as a
// proper sum type rather than a negative-sentinel-int return.
type Event uint8

const (
	// EventNone means the byte was consumed with no frame to report yet.
	EventNone Event = iota
	// EventFrame means Frame() now holds a freshly completed frame.
	EventFrame
	// EventProtocolError means an illegal byte was seen mid-fragment; the
	// fragment was dropped and decoding resumed at ContentWait. Not fatal.
	EventProtocolError
)

// Decoder is the byte-level state machine that turns a raw byte stream
// into a sequence of Frame values, with no time
// dependency of its own beyond the injected process-tree rate filter.
//
// Decoder is not safe for concurrent use; the scheduler owns it exclusively.
type Decoder struct {
	st             state
	frags          fragmentStore
	rate           *procRateFilter
	prev           byte
	cur            ContentClass
	curUnsolicited bool
	ignore         bool // current Proc frame is being rate-limited away
	frame          Frame

	onError func()
}

// NewDecoder creates a Decoder with the given initial process-tree refresh
// rate.
func NewDecoder(refreshRate time.Duration) *Decoder {
	return &Decoder{
		st:   stateContentWait,
		rate: newProcRateFilter(refreshRate),
	}
}

// SetRefreshRate updates the process-tree rate-limit window in place.
func (d *Decoder) SetRefreshRate(rate time.Duration) {
	d.rate.setRate(rate)
}

// OnProtocolError registers a callback invoked whenever a byte triggers
// EventProtocolError, so the caller can count it without Decoder needing its
// own counters.
func (d *Decoder) OnProtocolError(fn func()) {
	d.onError = fn
}

// Reset clears all in-flight decode state (used when the link or target is
// reinitialised).
func (d *Decoder) Reset() {
	d.st = stateContentWait
	d.frags.clear()
	d.prev = 0
	d.ignore = false
}

// Frame returns the most recently completed frame. Valid only immediately
// after Feed returns EventFrame.
func (d *Decoder) Frame() Frame {
	return d.frame
}

// Feed processes a single byte arriving at time now and reports what
// happened. Call Frame() to retrieve the decoded frame when it returns
// EventFrame.
func (d *Decoder) Feed(ch byte, now time.Time) Event {
	ev := d.step(ch, now)
	d.prev = ch
	return ev
}

func (d *Decoder) step(ch byte, now time.Time) Event {
	switch d.st {
	case stateContentWait:
		return d.stepContentWait(ch, now)
	case stateDataReceive:
		return d.stepDataReceive(ch)
	default:
		return EventNone
	}
}

func (d *Decoder) stepContentWait(ch byte, now time.Time) Event {
	class := ContentClass(ch)

	if class == ContentNone {
		d.frame = Frame{ContentID: ContentNone}
		return EventFrame
	}

	if class < ContentProc || class > ContentCmd {
		// Not a recognised content id while idle: ignored, not an error.
		return EventNone
	}

	d.cur = class
	d.curUnsolicited = d.prev == FlowTargetToSched
	d.ignore = false
	d.frags.open(class)

	if class == ContentProc && !d.rate.accept(now) {
		// Bytes are still consumed through end/abort to stay in sync; the
		// frame itself is never emitted.
		d.frags.abort(class)
		d.ignore = true
	}

	d.st = stateDataReceive
	return EventNone
}

func (d *Decoder) stepDataReceive(ch byte) Event {
	switch ch {
	case IdContentCut:
		d.frags.abort(d.cur)
		d.st = stateContentWait
		return EventNone

	case IdContentEnd:
		d.st = stateContentWait
		if d.ignore {
			d.frags.abort(d.cur)
			return EventNone
		}
		d.frame = Frame{
			ContentID:   d.cur,
			Payload:     d.frags.finish(d.cur),
			Unsolicited: d.curUnsolicited,
		}
		return EventFrame

	case 0x00:
		// Padding; ignored.
		return EventNone
	}

	if isPayloadByte(ch) {
		if !d.ignore {
			d.frags.append(d.cur, ch)
		}
		return EventNone
	}

	// Illegal byte mid-fragment: drop it and resynchronise.
	d.frags.abort(d.cur)
	d.st = stateContentWait
	if d.onError != nil {
		d.onError()
	}
	return EventProtocolError
}
