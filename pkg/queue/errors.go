package queue

import "errors"

var (
	// ErrEventNotFound indicates no queue entry carries the given id
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidTransition indicates a status change that would move the
	// lifecycle backward or out of a terminal state
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrResumeInProgress indicates another entry is already resuming
	ErrResumeInProgress = errors.New("another event is already resuming")

	// ErrInvalidQueueDocument indicates the on-disk document did not parse
	ErrInvalidQueueDocument = errors.New("invalid queue document")
)
