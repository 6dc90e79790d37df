package fanout

// LogSink adapts a Broadcaster to engine.ContentSink. It is defined here
// rather than in package engine so that engine has no dependency on the
// transport layer that consumes it; the method set matches structurally.
type LogSink struct {
	*Broadcaster
}

// PushLog implements engine.ContentSink.
func (s LogSink) PushLog(line string) {
	s.Broadcast(line)
}
