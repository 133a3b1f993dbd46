package eventqueue

import "errors"

var (
	// ErrRepositoryNil is returned when a nil repository is provided.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrProcessorNil is returned when a worker is built without a processor.
	ErrProcessorNil = errors.New("event processor cannot be nil")

	// ErrNoEventToClaim signals an empty queue; not a failure.
	ErrNoEventToClaim = errors.New("no event ready to claim")

	// ErrEventNotFound is returned for operations on unknown event ids.
	ErrEventNotFound = errors.New("event not found")

	// ErrPayloadMarshal is returned when the event payload cannot be encoded.
	ErrPayloadMarshal = errors.New("failed to marshal event payload")

	// ErrEnqueueFailed is returned when the event could not be stored.
	ErrEnqueueFailed = errors.New("failed to enqueue event")

	// ErrQueueUnavailable wraps storage failures on the queue tables.
	ErrQueueUnavailable = errors.New("event queue storage unavailable")
)
