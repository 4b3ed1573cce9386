// Package service turns decoded webhook payloads into persisted telemetry.
// The pipeline per event is: normalize the timestamp, classify the envelope
// into records, persist them, then run the slowlink and SIP side channels.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/telhawk-systems/rtc-telemetry/internal/dlq"
	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/metrics"
	"github.com/telhawk-systems/rtc-telemetry/internal/models"
	"github.com/telhawk-systems/rtc-telemetry/internal/normalizer"
)

// Sink is the persistence surface the ingest pipeline writes to.
type Sink interface {
	InsertSessionEvent(ctx context.Context, rec *models.SessionEvent) error
	InsertHandleEvent(ctx context.Context, rec *models.HandleEvent) error
	InsertJSEP(ctx context.Context, rec *models.JSEPRecord) error
	InsertIce(ctx context.Context, rec *models.IceRecord) error
	InsertSelectedPair(ctx context.Context, rec *models.SelectedPairRecord) error
	InsertDtls(ctx context.Context, rec *models.DtlsRecord) error
	InsertConnection(ctx context.Context, rec *models.ConnectionRecord) error
	InsertMedia(ctx context.Context, rec *models.MediaRecord) error
	InsertStats(ctx context.Context, rec *models.StatsRecord) error
	InsertPluginEvent(ctx context.Context, rec *models.PluginEvent) error
	InsertTransportEvent(ctx context.Context, rec *models.TransportEvent) error
	InsertCoreStatus(ctx context.Context, rec *models.CoreStatusRecord) error
	UpsertSipCall(ctx context.Context, rec *models.SipCall) error
	InsertSlowlink(ctx context.Context, rec *models.SlowlinkRecord) error
}

// IngestService drives classification and persistence for webhook payloads.
type IngestService struct {
	sink   Sink
	queue  dlq.Writer
	logger *logging.Logger
}

// NewIngestService wires the pipeline to its sink.
func NewIngestService(sink Sink, logger *logging.Logger) *IngestService {
	return &IngestService{sink: sink, logger: logger}
}

// WithDLQ attaches a dead letter queue for events whose persistence failed.
// Without one, failed batch elements are only logged.
func (s *IngestService) WithDLQ(queue dlq.Writer) *IngestService {
	s.queue = queue
	return s
}

// Process ingests one decoded webhook payload. A JSON array is a batch:
// elements are processed in arrival order, and one element failing does not
// stop the ones after it. A single object is processed directly and its
// error returned. Anything else is silently ignored.
func (s *IngestService) Process(ctx context.Context, payload any) error {
	switch p := payload.(type) {
	case []any:
		metrics.BatchSize.Observe(float64(len(p)))
		for _, item := range p {
			if err := s.Process(ctx, item); err != nil {
				s.logger.ErrorContext(ctx, "event persistence failed", logging.Error(err),
					slog.String("event", compactJSON(item)))
				s.writeDLQ(ctx, item, err)
			}
		}
		return nil
	case map[string]any:
		return s.processOne(ctx, p)
	default:
		return nil
	}
}

func (s *IngestService) processOne(ctx context.Context, env map[string]any) error {
	ts := normalizer.Timestamp(env["timestamp"])
	session := optInt64(env, "session_id")
	handle := optInt64(env, "handle_id")

	c := classify(ctx, s.logger, env, ts)

	for _, rec := range c.records {
		if err := s.persist(ctx, rec); err != nil {
			metrics.StorageErrors.Inc()
			return err
		}
	}

	// Side channels run after the event's own records are in. Slowlink
	// capture is best effort; SIP correlation is not.
	if c.slowlink != nil {
		s.writeSlowlink(ctx, session, handle, c.slowlink, ts)
	}
	if c.sip != nil {
		if err := s.correlateSip(ctx, session, handle, c.sip, ts); err != nil {
			metrics.StorageErrors.Inc()
			return err
		}
	}
	return nil
}

func (s *IngestService) persist(ctx context.Context, rec models.Record) error {
	start := time.Now()
	defer func() {
		metrics.StorageDuration.Observe(time.Since(start).Seconds())
	}()

	switch r := rec.(type) {
	case *models.SessionEvent:
		return s.sink.InsertSessionEvent(ctx, r)
	case *models.HandleEvent:
		return s.sink.InsertHandleEvent(ctx, r)
	case *models.JSEPRecord:
		return s.sink.InsertJSEP(ctx, r)
	case *models.IceRecord:
		return s.sink.InsertIce(ctx, r)
	case *models.SelectedPairRecord:
		return s.sink.InsertSelectedPair(ctx, r)
	case *models.DtlsRecord:
		return s.sink.InsertDtls(ctx, r)
	case *models.ConnectionRecord:
		return s.sink.InsertConnection(ctx, r)
	case *models.MediaRecord:
		return s.sink.InsertMedia(ctx, r)
	case *models.StatsRecord:
		return s.sink.InsertStats(ctx, r)
	case *models.PluginEvent:
		return s.sink.InsertPluginEvent(ctx, r)
	case *models.TransportEvent:
		return s.sink.InsertTransportEvent(ctx, r)
	case *models.CoreStatusRecord:
		return s.sink.InsertCoreStatus(ctx, r)
	default:
		return fmt.Errorf("unhandled record type %T", rec)
	}
}

func (s *IngestService) writeDLQ(ctx context.Context, payload any, cause error) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Write(ctx, payload, cause, "persistence"); err != nil {
		s.logger.ErrorContext(ctx, "dead letter write failed", logging.Error(err))
		return
	}
	metrics.DLQWrites.Inc()
}

// compactJSON renders a payload for a log line without failing on cycles.
func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
