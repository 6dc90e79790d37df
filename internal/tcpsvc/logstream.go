package tcpsvc

import (
	"bufio"
	"context"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/NoOrientationProgramming/code-orb/internal/fanout"
)

// LogStreamService is a plain TCP listener that streams decoded log-content
// frames to every connected peer, in the order their closing frame byte
// arrived on the wire, via a fanout.Broadcaster subscription.
type LogStreamService struct {
	Addr        string
	Broadcaster *fanout.Broadcaster
	Logger      *slog.Logger
}

// Serve listens on s.Addr and blocks until ctx is cancelled or a fatal
// accept error occurs.
func (s *LogStreamService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Logger.Info("tcpsvc: logstream listening", slog.String("addr", s.Addr))
	return serve(ctx, ln, s.Logger, "logstream", func(conn net.Conn) {
		s.handle(ctx, conn)
	})
}

func (s *LogStreamService) handle(ctx context.Context, conn net.Conn) {
	peerID := uuid.NewString()
	logger := s.Logger.With(slog.String("peer_id", peerID), slog.String("remote_addr", conn.RemoteAddr().String()))
	logger.Info("tcpsvc: logstream client connected")
	defer logger.Info("tcpsvc: logstream client disconnected")

	client := s.Broadcaster.Register()
	defer s.Broadcaster.Unregister(client)

	w := bufio.NewWriter(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-client.Send():
			if !ok {
				return
			}
			if _, err := w.WriteString(line); err != nil {
				return
			}
			if _, err := w.WriteString("\n"); err != nil {
				return
			}
			if w.Flush() != nil {
				return
			}
		}
	}
}
