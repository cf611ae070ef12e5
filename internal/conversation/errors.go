package conversation

import "errors"

// Failure taxonomy. None of these escape HandleMessage; they are recorded in
// the turn metrics and reasoning notes.
var (
	// ErrRetrievalFailure: the retriever failed or timed out. The turn
	// continues with an empty result.
	ErrRetrievalFailure = errors.New("retrieval failure")

	// ErrGenerationFailure: the generator failed or timed out. The turn
	// resolves to an abstention.
	ErrGenerationFailure = errors.New("generation failure")

	// ErrInvalidEvidence: the generator cited a chunk id that was not
	// retrieved this turn.
	ErrInvalidEvidence = errors.New("evidence references unknown chunk")

	// ErrLoopLimitReached marks a forced answer after max_clarify
	// clarifications. It is a policy branch, not a fault.
	ErrLoopLimitReached = errors.New("clarification limit reached")
)
