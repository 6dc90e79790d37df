package tcpsvc

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
)

// pollInterval is how often a connected process-tree client is checked for a
// fresh snapshot. It is independent of the engine's refresh_rate_ms: a
// client only ever sees a snapshot the engine has already accepted.
const pollInterval = 100 * time.Millisecond

// ProcSource is the subset of *engine.Engine this service needs: the latest
// accepted process-tree snapshot and its one-shot changed latch.
type ProcSource interface {
	ProcSnapshot() string
	ContentProcChanged() bool
}

// ProcTreeService is a plain TCP listener that pushes the current
// process-tree snapshot to a peer on connect, then again every time the
// engine accepts a new one.
type ProcTreeService struct {
	Addr   string
	Source ProcSource
	Logger *slog.Logger
}

// Serve listens on s.Addr and blocks until ctx is cancelled or a fatal
// accept error occurs.
func (s *ProcTreeService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Logger.Info("tcpsvc: proctree listening", slog.String("addr", s.Addr))
	return serve(ctx, ln, s.Logger, "proctree", func(conn net.Conn) {
		s.handle(ctx, conn)
	})
}

func (s *ProcTreeService) handle(ctx context.Context, conn net.Conn) {
	peerID := uuid.NewString()
	logger := s.Logger.With(slog.String("peer_id", peerID), slog.String("remote_addr", conn.RemoteAddr().String()))
	logger.Info("tcpsvc: proctree client connected")
	defer logger.Info("tcpsvc: proctree client disconnected")

	w := bufio.NewWriter(conn)
	sent := s.Source.ProcSnapshot()
	if !writeSnapshot(w, sent) {
		return
	}
	s.Source.ContentProcChanged() // clear any latch already set before connect

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The latch is shared by every connection, so a change another
			// connection consumed is still caught by comparing against the
			// snapshot this peer was last sent.
			changed := s.Source.ContentProcChanged()
			snap := s.Source.ProcSnapshot()
			if !changed && snap == sent {
				continue
			}
			sent = snap
			if !writeSnapshot(w, snap) {
				return
			}
		}
	}
}

// writeSnapshot writes snapshot followed by the sentinel "\n\x00\n" (a line
// holding a single NUL byte) so a line-oriented client can tell where one
// snapshot ends and the next begins. It reports whether the write succeeded.
func writeSnapshot(w *bufio.Writer, snapshot string) bool {
	if _, err := w.WriteString(snapshot); err != nil {
		return false
	}
	if _, err := w.WriteString("\n\x00\n"); err != nil {
		return false
	}
	return w.Flush() == nil
}
