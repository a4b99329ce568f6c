package broker

import (
	"context"

	"opsflow/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, env models.EventEnvelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one decoded envelope. Errors that are not retryable
// (see errors.IsRetryable) skip the remaining attempts and go to the DLQ.
type HandlerFunc func(ctx context.Context, env models.EventEnvelope) error
