package swt

// EncodePoll returns the single-byte host→target poll frame that invites the
// target to deliver its next content frame.
func EncodePoll() []byte {
	return []byte{FlowTargetToSched}
}

// EncodeCommand returns the host→target command frame for text:
// FlowSchedToTarget IdContentScToTaCmd <text> 0x00 IdContentEnd.
func EncodeCommand(text string) []byte {
	out := make([]byte, 0, len(text)+4)
	out = append(out, FlowSchedToTarget, IdContentScToTaCmd)
	out = append(out, text...)
	out = append(out, cmdTerminator, IdContentEnd)
	return out
}
