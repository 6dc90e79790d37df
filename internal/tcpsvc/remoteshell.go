package tcpsvc

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
)

// commandPollInterval is how often a pending command's response is checked.
const commandPollInterval = 20 * time.Millisecond

// commandTimeout bounds how long the shell waits for a response before
// reporting the command as timed out to the peer. It is well above the
// engine's internal 330ms response window plus its four-attempt re-request
// budget, so a legitimate in-flight command is never reported as lost
// prematurely.
const commandTimeout = 3 * time.Second

// CommandSender is the subset of *engine.Engine a remote shell connection
// needs to submit a command and collect its response.
type CommandSender interface {
	CommandSend(text string) (uint32, error)
	CommandResponseGet(id uint32) (string, bool)
}

// RemoteShellService is a plain TCP listener accepting one command per line
// and writing back the target's response line. It has no line editor,
// history, or tab completion; it is the thinnest front end that exercises
// CommandQueue end to end.
type RemoteShellService struct {
	Addr   string
	Engine CommandSender
	Logger *slog.Logger
}

// Serve listens on s.Addr and blocks until ctx is cancelled or a fatal
// accept error occurs.
func (s *RemoteShellService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Logger.Info("tcpsvc: remoteshell listening", slog.String("addr", s.Addr))
	return serve(ctx, ln, s.Logger, "remoteshell", func(conn net.Conn) {
		s.handle(ctx, conn)
	})
}

func (s *RemoteShellService) handle(ctx context.Context, conn net.Conn) {
	peerID := uuid.NewString()
	logger := s.Logger.With(slog.String("peer_id", peerID), slog.String("remote_addr", conn.RemoteAddr().String()))
	logger.Info("tcpsvc: remoteshell client connected")
	defer logger.Info("tcpsvc: remoteshell client disconnected")

	scanner := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}

		id, err := s.Engine.CommandSend(text)
		if err != nil {
			if !writeLine(w, "error: "+err.Error()) {
				return
			}
			continue
		}

		reply, ok := s.awaitResponse(ctx, id)
		if !ok {
			if !writeLine(w, "error: command timed out") {
				return
			}
			continue
		}
		if !writeLine(w, reply) {
			return
		}
	}
}

// awaitResponse polls Engine.CommandResponseGet until the response is
// available, ctx is cancelled, or commandTimeout elapses.
func (s *RemoteShellService) awaitResponse(ctx context.Context, id uint32) (string, bool) {
	deadline := time.Now().Add(commandTimeout)
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		if reply, ok := s.Engine.CommandResponseGet(id); ok {
			return reply, true
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
			if time.Now().After(deadline) {
				return "", false
			}
		}
	}
}

func writeLine(w *bufio.Writer, line string) bool {
	if _, err := w.WriteString(line); err != nil {
		return false
	}
	if _, err := w.WriteString("\n"); err != nil {
		return false
	}
	return w.Flush() == nil
}
