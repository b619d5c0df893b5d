package chatbox

// StopReason is the normalized reason a generation ended. Adapters keep the
// vendor's value in Message.RawStopReason.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopLength  StopReason = "length"
	StopSafety  StopReason = "safety"
	StopUnknown StopReason = "unknown"

	// Set by the client rather than the provider.
	StopError   StopReason = "error"
	StopAborted StopReason = "aborted"
)
