package link

import (
	"bytes"
	"sync"
)

// Loopback is an in-memory Link for tests. Bytes written to it accumulate in
// an outbox; a test (or a Responder callback) decides what, if anything, the
// simulated target writes back by calling Feed.
//
// Loopback is safe for concurrent use.
type Loopback struct {
	mu     sync.Mutex
	inbox  bytes.Buffer // bytes available to Read (target -> host)
	outbox bytes.Buffer // bytes written by Write, drained by Sent (host -> target)
	closed bool

	// Responder, if set, is invoked synchronously at the end of every Write
	// call with the bytes just written, and its return value is appended to
	// the inbox. This lets tests model a target that answers immediately
	// without a separate goroutine.
	Responder func(written []byte) []byte
}

// NewLoopback creates an empty Loopback.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Read implements Link.
func (l *Loopback) Read(buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	if l.inbox.Len() == 0 {
		return 0, nil
	}
	return l.inbox.Read(buf)
}

// Write implements Link.
func (l *Loopback) Write(buf []byte) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	l.outbox.Write(buf)
	responder := l.Responder
	l.mu.Unlock()

	if responder != nil {
		if reply := responder(append([]byte(nil), buf...)); len(reply) > 0 {
			l.Feed(reply)
		}
	}
	return len(buf), nil
}

// Close implements Link.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Feed appends data to the simulated target's outbound stream, making it
// available to the next Read call(s).
func (l *Loopback) Feed(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inbox.Write(data)
}

// Sent drains and returns everything written to the loopback so far.
func (l *Loopback) Sent() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, l.outbox.Len())
	copy(out, l.outbox.Bytes())
	l.outbox.Reset()
	return out
}

// StaticOpener is an Opener that hands back a pre-built Link immediately,
// always reporting OK. It lets tests drive the scheduler against a
// Loopback without a real device path.
type StaticOpener struct {
	L Link
}

// Open implements Opener.
func (o StaticOpener) Open(device string) (Link, Outcome, error) {
	return o.L, OK, nil
}

