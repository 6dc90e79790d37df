package engine

import (
	"bytes"
	"time"

	"github.com/NoOrientationProgramming/code-orb/internal/link"
	"github.com/NoOrientationProgramming/code-orb/internal/swt"
)

// tick performs at most one state transition plus bounded byte decoding,
// then returns, so the scheduler runs cooperatively on a single goroutine
// with no locking between states.
func (e *Engine) tick() {
	switch e.state {
	case stStart:
		e.setState(stUartInit)

	case stUartInit:
		e.closeLink()
		e.setLinkOnline(false)
		e.setTargetOnline(false)
		e.setState(stDevUartInit)

	case stDevUartInit:
		l, outcome, err := e.opener.Open(e.device)
		switch outcome {
		case link.Pending:
			// stay; retry next tick.
		case link.Err:
			if err != nil {
				e.logger.Warn("link open failed", "device", e.device, "err", err)
			}
			e.setState(stUartInit)
		case link.OK:
			e.linkConn = l
			e.setLinkOnline(true)
			e.setState(stTargetInit)
		}

	case stTargetInit:
		if e.manualControl.Load() {
			e.setState(stCtrlManual)
			return
		}
		e.metrics.HandshakeAttempts.Add(1)
		e.decoder.Reset()
		e.writeLink(swt.EncodeCommand(e.initCode))
		e.writeLink(swt.EncodePoll())
		e.deadline = time.Now().Add(responseWindow)
		e.setState(stTargetInitDoneWait)

	case stTargetInitDoneWait:
		if err := e.pumpLink(); err != nil {
			e.setState(stUartInit)
			return
		}
		if e.state != stTargetInitDoneWait {
			return // a frame advanced us to Main already
		}
		if time.Now().After(e.deadline) {
			e.enterTargetInit("handshake timeout")
		}

	case stMain:
		if e.manualControl.Load() {
			e.setState(stCtrlManual)
			return
		}
		e.queue.ExpireResponses(time.Now())
		if err := e.pumpLink(); err != nil {
			e.setState(stUartInit)
			return
		}
		if cmd, ok := e.queue.TakeNext(); ok {
			e.writeLink(swt.EncodeCommand(cmd.Text))
			e.expectCmdReply = true
			e.reRequestCount = 0
			e.setState(stDataRequest)
		} else if e.monitoring.Load() {
			e.expectCmdReply = false
			e.setState(stDataRequest)
		}
		// else: nothing to send and monitoring is off; idle this tick.

	case stDataRequest:
		e.queue.Tick()
		e.writeLink(swt.EncodePoll())
		e.deadline = time.Now().Add(responseWindow)
		e.setState(stTargetRespWait)

	case stTargetRespWait:
		if err := e.pumpLink(); err != nil {
			e.setState(stUartInit)
			return
		}
		if e.state != stTargetRespWait {
			return
		}
		if time.Now().After(e.deadline) {
			e.enterTargetInit("response timeout")
		}

	case stCtrlManual:
		if !e.manualControl.Load() {
			e.enterTargetInit("manual control cleared")
		}
	}
}

// setState transitions to next, recording the change for diagnostics.
func (e *Engine) setState(next schedState) {
	if next != e.state {
		e.diag.record("state", e.state.String()+" -> "+next.String())
	}
	e.state = next
}

// enterTargetInit transitions to TargetInit. Leaving the Main/TargetRespWait
// fast path into TargetInit marks the target offline and, on that
// transition only, appends the offline sentinel to the process-tree
// snapshot.
func (e *Engine) enterTargetInit(reason string) {
	wasOnline := e.targetOnline.Swap(false)
	e.metrics.TargetOnline.Store(0)
	if wasOnline {
		e.markOffline()
	}
	e.diag.record("state", e.state.String()+" -> TargetInit ("+reason+")")
	e.state = stTargetInit
}

// markOffline appends the offline sentinel to the held snapshot exactly
// once per offline transition.
func (e *Engine) markOffline() {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	if !e.offlineMarked {
		e.procSnapshot += "\r\n[Target is offline]\r\n"
		e.offlineMarked = true
		e.procChanged.Store(true)
	}
}

// pumpLink reads whatever bytes are currently available and feeds them
// through the decoder, dispatching each completed frame to handleFrame as
// it is decoded so that a single Link.Read covering more than one frame is
// still processed in wire order within this tick.
func (e *Engine) pumpLink() error {
	if e.linkConn == nil {
		return nil
	}
	n, err := e.linkConn.Read(e.readBuf[:])
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	e.metrics.BytesReceived.Add(int64(n))
	now := time.Now()
	for i := 0; i < n; i++ {
		switch e.decoder.Feed(e.readBuf[i], now) {
		case swt.EventFrame:
			e.handleFrame(e.decoder.Frame())
		case swt.EventProtocolError:
			// Counted inside the decoder's OnProtocolError callback.
		}
	}
	return nil
}

// handleFrame applies the frame-distribution and handshake/re-request rules
// according to the scheduler's current state.
func (e *Engine) handleFrame(frame swt.Frame) {
	switch e.state {
	case stTargetInitDoneWait:
		if frame.ContentID == swt.ContentCmd && string(frame.Payload) == targetHandshakeReply {
			e.setTargetOnline(true)
			e.queue.Clear()
			e.diag.record("handshake", "target online")
			e.setState(stMain)
		}
		// Any other frame is discarded; waiting continues.

	case stTargetRespWait:
		if e.expectCmdReply && frame.ContentID != swt.ContentCmd {
			e.reRequestCount++
			e.distribute(frame)
			if e.reRequestCount < maxReRequests {
				e.metrics.ReRequests.Add(1)
				e.writeLink(swt.EncodePoll())
				e.deadline = time.Now().Add(responseWindow)
				return // stay in TargetRespWait
			}
			e.queue.AbandonInFlight()
			e.diag.record("rerequest", "re-request budget exceeded, command abandoned")
			e.setState(stMain)
			return
		}
		e.expectCmdReply = false
		e.distribute(frame)
		e.setState(stMain)

	case stMain:
		// The protocol is half-duplex: nothing should arrive here without
		// an outstanding poll, but distribute defensively all the same.
		e.distribute(frame)
	}
}

// distribute applies the Proc/Log/Cmd/None handling common to every frame
// the scheduler decodes.
func (e *Engine) distribute(frame swt.Frame) {
	switch frame.ContentID {
	case swt.ContentProc:
		e.acceptProc(frame.Payload)
	case swt.ContentLog:
		e.sink.PushLog(string(frame.Payload))
	case swt.ContentCmd:
		if !frame.Unsolicited {
			e.queue.CompleteInFlight(string(frame.Payload))
		}
	case swt.ContentNone:
		e.metrics.ContentNone.Add(1)
	}
}

// acceptProc replaces the held process-tree snapshot. A payload
// byte-for-byte identical to the previous one still replaces the snapshot
// (clearing any offline sentinel) but does not set the "changed" latch.
func (e *Engine) acceptProc(payload []byte) {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	changed := e.lastProcBytes == nil || !bytes.Equal(payload, e.lastProcBytes)
	e.lastProcBytes = append([]byte(nil), payload...)
	e.procSnapshot = string(payload)
	e.offlineMarked = false
	if changed {
		e.procChanged.Store(true)
	}
}
