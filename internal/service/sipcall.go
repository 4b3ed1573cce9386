package service

import (
	"context"
	"fmt"
	"time"

	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/metrics"
	"github.com/telhawk-systems/rtc-telemetry/internal/models"
)

// extractCallID probes the payload for a SIP dialog identifier. The plugin
// reports it under different keys depending on the event, including nested
// SIP headers.
func extractCallID(data map[string]any) *string {
	if s := optString(data, "call_id"); s != nil {
		return s
	}
	if s := optString(data, "call-id"); s != nil {
		return s
	}
	if headers, ok := asObject(data["headers"]); ok {
		if s := optString(headers, "Call-ID"); s != nil {
			return s
		}
		if s := optString(headers, "call-id"); s != nil {
			return s
		}
	}
	return optString(data, "sip_call_id")
}

// resolveDirection maps boolean incoming/outgoing markers to "in"/"out",
// falling back to an explicit direction field.
func resolveDirection(data map[string]any) *string {
	if b := optBool(data, "incoming"); b != nil && *b {
		dir := "in"
		return &dir
	}
	if b := optBool(data, "outgoing"); b != nil && *b {
		dir := "out"
		return &dir
	}
	return optString(data, "direction")
}

// buildSipCall assembles the correlation record from one SIP plugin event
// payload. Returns nil when the payload carries no dialog identifier.
func buildSipCall(session, handle *int64, data map[string]any, ts time.Time) *models.SipCall {
	callID := extractCallID(data)
	if callID == nil {
		return nil
	}
	return &models.SipCall{
		CallID:    *callID,
		Session:   session,
		Handle:    handle,
		FromURI:   firstString(data, "from", "from_uri", "caller"),
		ToURI:     firstString(data, "to", "to_uri", "callee"),
		Direction: resolveDirection(data),
		CreatedAt: ts,
	}
}

// correlateSip upserts the call row keyed by Call-ID. Events with no dialog
// identifier are a no-op; the plugin emits plenty of those (registrations,
// option pings) and they are not correlation material.
func (s *IngestService) correlateSip(ctx context.Context, session, handle *int64, data map[string]any, ts time.Time) error {
	call := buildSipCall(session, handle, data, ts)
	if call == nil {
		return nil
	}
	if err := s.sink.UpsertSipCall(ctx, call); err != nil {
		return fmt.Errorf("upsert sip call %s: %w", call.CallID, err)
	}
	metrics.SipUpserts.Inc()
	s.logger.DebugContext(ctx, "sip call correlated", logging.CallID(call.CallID),
		logging.Session(session), logging.Handle(handle))
	return nil
}
