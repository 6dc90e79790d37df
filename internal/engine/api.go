package engine

import (
	"errors"

	"github.com/NoOrientationProgramming/code-orb/internal/queue"
)

// ErrEmptyCommand is returned by CommandSend for zero-length command text.
var ErrEmptyCommand = errors.New("engine: command text must not be empty")

// CommandSend enqueues text at User priority and returns its assigned id.
func (e *Engine) CommandSend(text string) (uint32, error) {
	return e.CommandSendPriority(text, queue.PrioUser)
}

// CommandSendPriority enqueues text at the given priority. Only PrioUser and
// PrioSysLow are meant for external callers; PrioSysHigh is reserved for the
// scheduler's own future use.
func (e *Engine) CommandSendPriority(text string, prio queue.Priority) (uint32, error) {
	if text == "" {
		return 0, ErrEmptyCommand
	}
	return e.queue.Enqueue(text, prio)
}

// CommandResponseGet returns and removes the response for id if the
// scheduler has completed it. A second call with the same id returns false.
func (e *Engine) CommandResponseGet(id uint32) (string, bool) {
	return e.queue.ResponseTake(id)
}

// ContentProcChanged reports whether the process-tree snapshot has changed
// since the last call, clearing the latch as it is read.
func (e *Engine) ContentProcChanged() bool {
	return e.procChanged.Swap(false)
}

// ProcSnapshot returns the most recently accepted process-tree snapshot,
// with the offline sentinel appended if the target has gone offline since
// that snapshot was accepted. The sentinel stays after the target comes
// back online, until the next accepted Proc payload replaces the snapshot.
func (e *Engine) ProcSnapshot() string {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	return e.procSnapshot
}

// TargetOnline reports whether the most recent handshake succeeded and no
// subsequent TargetInit transition has occurred.
func (e *Engine) TargetOnline() bool {
	return e.targetOnline.Load()
}

// LinkOnline reports whether the serial link is currently open.
func (e *Engine) LinkOnline() bool {
	return e.linkOnline.Load()
}
