package domain

import "errors"

var (
	// ErrInvalidSessionCode is returned for join codes with the wrong shape,
	// before any store lookup happens.
	ErrInvalidSessionCode = errors.New("invalid session code")
	// ErrSessionNotFound is returned when a code resolves to no session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuestionNotFound indicates a submitted question ID is unknown.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidOption indicates an option index outside the question's range.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrIllegalTransition indicates a state change with no valid edge from
	// the current lifecycle state. The engine swallows it as a no-op.
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	// ErrStoreUnavailable wraps store failures. It is ambiguous: the write
	// may or may not have landed, so callers re-check state instead of
	// blindly resubmitting.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
