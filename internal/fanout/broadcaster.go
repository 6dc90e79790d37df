// Package fanout provides the in-process broadcaster that backs the gateway's
// log-stream content sink. It fans each decoded log line out to every
// currently-connected log-stream TCP client without letting a slow or stalled
// client apply back-pressure to the scheduler goroutine that decodes the
// wire. The process-tree service does not use it: it reads the engine's
// snapshot directly.
//
// Design notes
//
//   - Each subscriber has a dedicated buffered channel of text lines. A
//     non-blocking send is used so that a slow or disconnected client never
//     stalls the engine's tick loop.
//   - Subscribers are tracked in a sync.Map keyed by a uuid client ID to allow
//     concurrent reads without a global lock on the hot broadcast path.
package fanout

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Client represents a single registered subscriber. It is created by
// Broadcaster.Register and is valid until Broadcaster.Unregister is called.
type Client struct {
	id      string
	send    chan string
	Dropped atomic.Int64 // incremented when the send buffer is full
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Send returns a receive-only channel on which broadcast lines are
// delivered. The channel is closed when the client is unregistered.
func (c *Client) Send() <-chan string { return c.send }

// Broadcaster fans text lines out to every registered subscriber
// (Register/Unregister/Broadcast). It is safe for concurrent use and is the
// concrete implementation backing the log-stream TCP service.
type Broadcaster struct {
	clients   sync.Map // map[string]*Client
	clientCnt atomic.Int64

	bufSize int
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Broadcaster. bufSize is the per-client channel buffer depth;
// 0 uses the default of 64.
func New(logger *slog.Logger, bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broadcaster{
		bufSize: bufSize,
		logger:  logger,
	}
}

// Register creates a new Client with a fresh uuid, stores it in the
// broadcaster, and returns a pointer to it. The caller must call Unregister
// to release resources when the subscriber disconnects.
//
// If the broadcaster is already closed, Register returns a Client whose Send
// channel is already closed.
func (b *Broadcaster) Register() *Client {
	c := &Client{
		id:   uuid.NewString(),
		send: make(chan string, b.bufSize),
	}
	if b.closed.Load() {
		close(c.send)
		return c
	}
	b.clients.Store(c.id, c)
	b.clientCnt.Add(1)
	return c
}

// Unregister removes c from the broadcaster and closes its Send channel so
// the associated connection goroutine exits cleanly. Calling Unregister
// twice, or with an already-removed client, is a no-op.
func (b *Broadcaster) Unregister(c *Client) {
	if _, loaded := b.clients.LoadAndDelete(c.id); loaded {
		close(c.send)
		b.clientCnt.Add(-1)
	}
}

// ClientCount returns the number of currently registered subscribers.
func (b *Broadcaster) ClientCount() int {
	return int(b.clientCnt.Load())
}

// Broadcast delivers line to every registered client using a non-blocking
// send. When a client's buffer is full the line is dropped and the client's
// Dropped counter is incremented.
func (b *Broadcaster) Broadcast(line string) {
	if b.closed.Load() {
		return
	}
	b.clients.Range(func(_, v any) bool {
		c := v.(*Client)
		select {
		case c.send <- line:
		default:
			c.Dropped.Add(1)
			if b.logger != nil {
				b.logger.Warn("fanout: client buffer full, dropping line",
					slog.String("client_id", c.id))
			}
		}
		return true
	})
}

// Close unregisters and closes every client's Send channel. After Close
// returns, Broadcast is a no-op and Register returns an already-closed
// client.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.clients.Range(func(key, value any) bool {
			b.clients.Delete(key)
			c := value.(*Client)
			close(c.send)
			b.clientCnt.Add(-1)
			return true
		})
	})
}
