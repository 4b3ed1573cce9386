package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream stream holding dead-lettered events.
	StreamName = "COLLECTOR_DLQ"

	subjectPrefix = "collector.dlq."
)

// JetStreamQueue writes failed events to NATS JetStream. Safe for use
// across multiple collector instances sharing one NATS cluster.
type JetStreamQueue struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewJetStreamQueue connects to NATS and ensures the DLQ stream exists.
func NewJetStreamQueue(ctx context.Context, url string) (*JetStreamQueue, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	return &JetStreamQueue{conn: conn, js: js, stream: stream}, nil
}

// Write publishes one failed event under collector.dlq.<reason>.
func (q *JetStreamQueue) Write(ctx context.Context, payload any, cause error, reason string) error {
	entry := FailedEvent{
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Error:     cause.Error(),
		Reason:    reason,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.js.Publish(ctx, subjectPrefix+reason, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}
	return nil
}

// List reads up to limit entries back from the stream for inspection.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: subjectPrefix + ">",
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch dlq messages: %w", err)
	}

	var entries []FailedEvent
	for msg := range msgs.Messages() {
		var entry FailedEvent
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close drains the NATS connection.
func (q *JetStreamQueue) Close() error {
	q.conn.Close()
	return nil
}
