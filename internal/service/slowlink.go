package service

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/metrics"
	"github.com/telhawk-systems/rtc-telemetry/internal/models"
	"github.com/telhawk-systems/rtc-telemetry/internal/repository"
)

// writeSlowlink persists a degraded-link payload on a best effort basis.
// The backing table is optional schema; a deployment that never ran its
// migration keeps ingesting, the write is just skipped with a warning.
// Other storage errors are logged too. Slowlink capture never fails the
// event that carried it.
func (s *IngestService) writeSlowlink(ctx context.Context, session, handle *int64, payload map[string]any, ts time.Time) {
	rec := &models.SlowlinkRecord{
		Session:   session,
		Handle:    handle,
		Payload:   []byte(serialize(payload)),
		Timestamp: ts,
	}

	err := s.sink.InsertSlowlink(ctx, rec)
	switch {
	case err == nil:
		metrics.SlowlinkWrites.WithLabelValues("ok").Inc()
	case errors.Is(err, repository.ErrSchemaMissing):
		metrics.SlowlinkWrites.WithLabelValues("schema_missing").Inc()
		s.logger.WarnContext(ctx, "slowlink table missing, apply the slowlink migration to enable capture",
			logging.Session(session), logging.Handle(handle))
	default:
		metrics.SlowlinkWrites.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "slowlink write failed", logging.Error(err),
			logging.Session(session), logging.Handle(handle))
	}
}
