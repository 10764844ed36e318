package domain

// SignalResult is the output of one strategy evaluation. It is produced and
// consumed within a single execution-loop iteration and never persisted.
type SignalResult struct {
	Signal   SignalType
	Strength float64 // Non-negative, monotonically related to conviction
	Reason   string  // Human-readable explanation for logs and notifications
}

// Hold returns a HOLD result with the given reason. Used by callers that must
// degrade to "do nothing" on insufficient data or computation faults.
func Hold(reason string) SignalResult {
	return SignalResult{Signal: SignalHold, Reason: reason}
}
