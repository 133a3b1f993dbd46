package eventqueue

import (
	"time"

	"github.com/google/uuid"
)

// Maximum delivery attempts per event before it is buried in the dead
// letter queue, and the time budget for a single attempt.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 120 * time.Second
)

// DefaultBackoff is the wait before each redelivery: one minute after the
// first failure, five after the second, fifteen after the third and any
// later one.
var DefaultBackoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

// BackoffFor returns the delay before the given retry. attempt is 1-based:
// attempt 1 is the first redelivery.
func BackoffFor(backoff []time.Duration, attempt int) time.Duration {
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoff) {
		attempt = len(backoff)
	}
	return backoff[attempt-1]
}

// Status is the delivery state of a queued event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
)

// Event is one durably queued provider notification. Payload carries the
// normalized event JSON; the raw webhook body stays inside it for forensic
// replay.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	EventType     string     `json:"event_type"` // provider's event name, for operator display
	Payload       []byte     `json:"payload"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	LockedBy      *uuid.UUID `json:"locked_by,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// DeadEvent is an event that exhausted its delivery attempts. It stays
// queryable for operators, who fix the underlying fault and requeue.
type DeadEvent struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	EventType  string    `json:"event_type"`
	Payload    []byte    `json:"payload"`
	Error      string    `json:"error"`
	Attempts   int       `json:"attempts"`
	ReceivedAt time.Time `json:"received_at"`
	FailedAt   time.Time `json:"failed_at"`
}
