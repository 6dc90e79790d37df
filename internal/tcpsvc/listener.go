// Package tcpsvc implements minimal, plain-net TCP front ends for CodeOrb's
// three operator-facing services: a process-tree view, a log stream, and a
// remote command shell. None of the TCP plumbing (Telnet negotiation,
// welcome banners, a line editor) is in scope here; each service is the
// thinnest possible net.Listener loop that exercises internal/engine's
// public API end to end.
package tcpsvc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// serve runs the standard accept loop against ln: one goroutine per
// connection, calling handle, until ctx is cancelled (which closes ln and
// unblocks Accept with net.ErrClosed, and closes every open connection). It
// returns once every spawned connection goroutine has exited.
func serve(ctx context.Context, ln net.Listener, logger *slog.Logger, name string, handle func(net.Conn)) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("tcpsvc: accept failed", slog.String("service", name), slog.Any("error", err))
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			handle(conn)
		}()
	}
}
