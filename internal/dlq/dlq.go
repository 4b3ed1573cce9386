// Package dlq stores events whose persistence failed so operators can
// replay them after fixing the underlying problem. The file backend is for
// single-instance deployments; JetStream supports a fleet of collectors.
package dlq

import (
	"context"
	"time"
)

// Writer records a failed event.
type Writer interface {
	Write(ctx context.Context, payload any, cause error, reason string) error
	Close() error
}

// FailedEvent is the envelope written to the queue.
type FailedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
	Error     string    `json:"error"`
	Reason    string    `json:"reason"`
}
