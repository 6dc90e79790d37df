package swt

import (
	"testing"
	"time"
)

func feedAll(t *testing.T, d *Decoder, data []byte, now time.Time) []Frame {
	t.Helper()
	var frames []Frame
	for _, b := range data {
		if d.Feed(b, now) == EventFrame {
			frames = append(frames, d.Frame())
		}
	}
	return frames
}

func TestDecoder_None(t *testing.T) {
	d := NewDecoder(DefaultRefreshRate)
	now := time.Now()

	frames := feedAll(t, d, []byte{byte(ContentNone)}, now)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].ContentID != ContentNone || len(frames[0].Payload) != 0 {
		t.Fatalf("unexpected frame: %+v", frames[0])
	}
}

func TestDecoder_CmdRoundTrip(t *testing.T) {
	d := NewDecoder(DefaultRefreshRate)
	now := time.Now()

	text := "OK"
	wire := append([]byte{byte(ContentCmd)}, append([]byte(text), IdContentEnd)...)
	frames := feedAll(t, d, wire, now)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.ContentID != ContentCmd || string(f.Payload) != text {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecoder_AbortDiscardsFragment(t *testing.T) {
	// <id> A B 0x0F <id> C 0x17 -> one frame (id, "C")
	d := NewDecoder(DefaultRefreshRate)
	now := time.Now()

	wire := []byte{byte(ContentLog), 'A', 'B', IdContentCut, byte(ContentLog), 'C', IdContentEnd}
	frames := feedAll(t, d, wire, now)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d: %+v", len(frames), frames)
	}
	if string(frames[0].Payload) != "C" {
		t.Fatalf("expected payload %q, got %q", "C", frames[0].Payload)
	}
}

func TestDecoder_FragmentOverflowTruncates(t *testing.T) {
	d := NewDecoder(DefaultRefreshRate)
	now := time.Now()

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = 'a'
	}
	wire := append([]byte{byte(ContentLog)}, append(payload, IdContentEnd)...)
	frames := feedAll(t, d, wire, now)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if len(frames[0].Payload) != FragmentMax {
		t.Fatalf("expected payload truncated to %d, got %d", FragmentMax, len(frames[0].Payload))
	}
}

func TestDecoder_ProtocolViolationDropsFragment(t *testing.T) {
	d := NewDecoder(DefaultRefreshRate)
	now := time.Now()

	// 0x01 is not in the restricted payload set and not a control byte.
	var sawError bool
	d.OnProtocolError(func() { sawError = true })

	ev1 := d.Feed(byte(ContentLog), now)
	if ev1 != EventNone {
		t.Fatalf("unexpected event opening frame: %v", ev1)
	}
	ev2 := d.Feed(0x01, now)
	if ev2 != EventProtocolError {
		t.Fatalf("expected EventProtocolError, got %v", ev2)
	}
	if !sawError {
		t.Fatalf("expected protocol error callback to fire")
	}

	// Decoder should have resynchronised: feeding None now should yield a
	// clean None frame.
	ev3 := d.Feed(byte(ContentNone), now)
	if ev3 != EventFrame || d.Frame().ContentID != ContentNone {
		t.Fatalf("decoder did not resynchronise after protocol violation")
	}
}

func TestDecoder_UnsolicitedFlag(t *testing.T) {
	d := NewDecoder(DefaultRefreshRate)
	now := time.Now()

	wire := []byte{FlowTargetToSched, byte(ContentLog), 'x', IdContentEnd}
	frames := feedAll(t, d, wire, now)
	if len(frames) != 1 || !frames[0].Unsolicited {
		t.Fatalf("expected one unsolicited frame, got %+v", frames)
	}
}

func TestDecoder_ProcRateFilter(t *testing.T) {
	d := NewDecoder(500 * time.Millisecond)
	t0 := time.Unix(0, 0)

	send := func(when time.Time, payload string) (Event, Frame) {
		var last Event
		for _, b := range append([]byte{byte(ContentProc)}, append([]byte(payload), IdContentEnd)...) {
			ev := d.Feed(b, when)
			if ev == EventFrame {
				last = ev
			}
		}
		return last, d.Frame()
	}

	ev1, f1 := send(t0, "P1")
	if ev1 != EventFrame || string(f1.Payload) != "P1" {
		t.Fatalf("expected P1 accepted, got %v %+v", ev1, f1)
	}

	ev2, _ := send(t0.Add(100*time.Millisecond), "P2")
	if ev2 == EventFrame {
		t.Fatalf("expected P2 to be rate-limited away")
	}

	ev3, f3 := send(t0.Add(600*time.Millisecond), "P3")
	if ev3 != EventFrame || string(f3.Payload) != "P3" {
		t.Fatalf("expected P3 accepted, got %v %+v", ev3, f3)
	}
}
