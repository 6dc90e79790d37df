package tcpsvc_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/NoOrientationProgramming/code-orb/internal/tcpsvc"
)

type fakeCommandSender struct {
	mu        sync.Mutex
	nextID    uint32
	responses map[uint32]string
	reject    bool
}

func newFakeCommandSender() *fakeCommandSender {
	return &fakeCommandSender{responses: make(map[uint32]string)}
}

func (f *fakeCommandSender) CommandSend(text string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return 0, errors.New("queue full")
	}
	f.nextID++
	id := f.nextID
	// Respond asynchronously, as the real scheduler would once the target
	// replies, except when text asks to simulate a stall.
	if text != "stall" {
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.mu.Lock()
			f.responses[id] = "echo:" + text
			f.mu.Unlock()
		}()
	}
	return id, nil
}

func (f *fakeCommandSender) CommandResponseGet(id uint32) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply, ok := f.responses[id]
	if ok {
		delete(f.responses, id)
	}
	return reply, ok
}

func TestRemoteShellService_RoundTrip(t *testing.T) {
	sender := newFakeCommandSender()
	addr := freeAddr(t)
	svc := &tcpsvc.RemoteShellService{Addr: addr, Engine: sender, Logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	waitForListener(t, addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("infoHelp\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "echo:infoHelp\n" {
		t.Fatalf("got %q, want %q", line, "echo:infoHelp\n")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestRemoteShellService_SendRejected(t *testing.T) {
	sender := newFakeCommandSender()
	sender.reject = true
	addr := freeAddr(t)
	svc := &tcpsvc.RemoteShellService{Addr: addr, Engine: sender, Logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)
	waitForListener(t, addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("q\n"))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "error: queue full\n" {
		t.Fatalf("got %q, want an error line", line)
	}
}
