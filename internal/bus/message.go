// Package bus connects the service to the message broker: receiving lead
// events, publishing enrichment results, and driving the acknowledgment
// protocol.
package bus

import (
	"context"
	"time"
)

// Message is one delivery from the subscription. The three terminal calls
// map onto the broker's acknowledgment protocol:
//
//   - Ack removes the message permanently.
//   - DeadLetter removes it to the dead-letter store with a reason.
//   - returning without either leaves it locked until the ack deadline
//     passes, after which the broker redelivers it.
//
// InProgress extends the lock for long-running work.
type Message interface {
	ID() string
	Subject() string
	Data() []byte
	Timestamp() time.Time
	Ack() error
	DeadLetter(reason string) error
	InProgress() error
}

// Handler processes one delivery. It owns the message's acknowledgment.
type Handler func(ctx context.Context, msg Message)

// Receiver delivers subscription messages to a handler. Stop halts delivery;
// in-flight handlers keep running.
type Receiver interface {
	Receive(ctx context.Context, handler Handler) (stop func(), err error)
}

// Publisher sends an event payload to a subject and waits for the broker to
// confirm persistence.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}
