package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/metrics"
	"github.com/telhawk-systems/rtc-telemetry/internal/models"
)

// classified is the outcome of mapping one event envelope onto storage
// records. records always persist; slowlink and sip are side channels that
// some plugin and core events additionally produce.
type classified struct {
	records  []models.Record
	slowlink map[string]any
	sip      map[string]any
}

// Slowlink notifications ride inside other events rather than having their
// own type code. Any of these keys marks the payload as one.
var slowlinkKeys = []string{"slowlink", "slowlink_threshold", "slowlink-threshold"}

func hasSlowlink(m map[string]any) bool {
	for _, key := range slowlinkKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// classify maps one decoded event envelope onto its normalized records.
// Unknown type codes and unrecognized sub-shapes produce no records; they
// are logged and counted, never failed.
func classify(ctx context.Context, logger *logging.Logger, env map[string]any, ts time.Time) classified {
	var out classified

	kind := 0
	if f, ok := env["type"].(float64); ok {
		kind = int(f)
	}
	session := optInt64(env, "session_id")
	handle := optInt64(env, "handle_id")
	event, _ := asObject(env["event"])

	switch kind {
	case models.KindSession:
		out.records = append(out.records, &models.SessionEvent{
			Session:   session,
			Name:      optString(event, "name"),
			Timestamp: ts,
		})

	case models.KindHandle:
		out.records = append(out.records, &models.HandleEvent{
			Session:   session,
			Handle:    handle,
			Name:      optString(event, "name"),
			Plugin:    optString(event, "plugin"),
			Timestamp: ts,
		})

	case models.KindJSEP:
		jsep, _ := asObject(event["jsep"])
		owner := optString(event, "owner")
		jsepType := optString(jsep, "type")
		out.records = append(out.records, &models.JSEPRecord{
			Session:   session,
			Handle:    handle,
			Remote:    owner != nil && *owner == "remote",
			Offer:     jsepType != nil && *jsepType == "offer",
			SDP:       optString(jsep, "sdp"),
			Timestamp: ts,
		})

	case models.KindWebRTC:
		rec := classifyWebRTC(session, handle, event, ts)
		if rec == nil {
			logger.WarnContext(ctx, "unrecognized webrtc event shape",
				logging.Session(session), logging.Handle(handle))
			metrics.EventsTotal.WithLabelValues(strconv.Itoa(kind), "unsupported").Inc()
			return out
		}
		out.records = append(out.records, rec)

	case models.KindMedia:
		rec := classifyMedia(session, handle, env, event, ts)
		if rec == nil {
			logger.WarnContext(ctx, "unrecognized media event shape",
				logging.Session(session), logging.Handle(handle))
			metrics.EventsTotal.WithLabelValues(strconv.Itoa(kind), "unsupported").Inc()
			return out
		}
		out.records = append(out.records, rec)

	case models.KindPlugin, models.KindTransport:
		plugin := optString(event, "plugin")
		payload := serialize(event["data"])
		if kind == models.KindPlugin {
			out.records = append(out.records, &models.PluginEvent{
				Session: session, Handle: handle, Plugin: plugin, Event: payload, Timestamp: ts,
			})
		} else {
			out.records = append(out.records, &models.TransportEvent{
				Session: session, Handle: handle, Plugin: plugin, Event: payload, Timestamp: ts,
			})
		}

		if data, ok := asObject(event["data"]); ok {
			if hasSlowlink(data) {
				out.slowlink = data
			}
			if plugin != nil && *plugin == models.SIPPlugin {
				out.sip = data
			}
		}

	case models.KindCore:
		if hasSlowlink(event) {
			out.slowlink = event
		}
		out.records = append(out.records, &models.CoreStatusRecord{
			Name:      "status",
			Value:     coreStatusValue(event),
			Timestamp: ts,
		})

	default:
		logger.WarnContext(ctx, "unsupported event kind", logging.Kind(kind),
			logging.Session(session), logging.Handle(handle))
		metrics.EventsTotal.WithLabelValues(strconv.Itoa(kind), "unsupported").Inc()
		return out
	}

	metrics.EventsTotal.WithLabelValues(strconv.Itoa(kind), "ok").Inc()
	return out
}

// classifyWebRTC picks the sub-kind by probing fields in a fixed order, so
// an event carrying several markers lands in exactly one table.
func classifyWebRTC(session, handle *int64, event map[string]any, ts time.Time) models.Record {
	stream := optInt64(event, "stream_id")
	component := optInt64(event, "component_id")

	switch {
	case event["ice"] != nil:
		return &models.IceRecord{
			Session: session, Handle: handle,
			Stream: stream, Component: component,
			State: stringOf(event["ice"]), Timestamp: ts,
		}
	case event["selected-pair"] != nil:
		return &models.SelectedPairRecord{
			Session: session, Handle: handle,
			Stream: stream, Component: component,
			Pair: stringOf(event["selected-pair"]), Timestamp: ts,
		}
	case event["dtls"] != nil:
		return &models.DtlsRecord{
			Session: session, Handle: handle,
			State: stringOf(event["dtls"]), Timestamp: ts,
		}
	case event["connection"] != nil:
		return &models.ConnectionRecord{
			Session: session, Handle: handle,
			State: stringOf(event["connection"]), Timestamp: ts,
		}
	}
	return nil
}

// classifyMedia distinguishes receiving flips from periodic stats reports.
// A receiving field wins; otherwise a base field marks a stats report.
func classifyMedia(session, handle *int64, env, event map[string]any, ts time.Time) models.Record {
	medium := optString(event, "media")

	if v, ok := event["receiving"]; ok && v != nil {
		return &models.MediaRecord{
			Session: session, Handle: handle,
			Medium:    medium,
			Receiving: v == true,
			Timestamp: ts,
		}
	}

	if v, ok := event["base"]; !ok || v == nil {
		return nil
	}

	rttVals, _ := asObject(event["rtt-values"])
	return &models.StatsRecord{
		Session: session,
		Handle:  handle,
		Subtype: optInt64(env, "subtype"),
		Mid:     optString(event, "mid"),
		Mindex:  optInt64(event, "mindex"),
		Codec:   optString(event, "codec"),
		Medium:  medium,

		Base:         optInt64(event, "base"),
		Lsr:          optInt64(event, "lsr"),
		LostLocal:    optInt64(event, "lost"),
		LostRemote:   optInt64(event, "lost-by-remote"),
		JitterLocal:  optFloat(event, "jitter-local"),
		JitterRemote: optFloat(event, "jitter-remote"),

		PacketsSent: optInt64(event, "packets-sent"),
		PacketsRecv: optInt64(event, "packets-received"),
		BytesSent:   optInt64(event, "bytes-sent"),
		BytesRecv:   optInt64(event, "bytes-received"),
		NacksSent:   optInt64(event, "nacks-sent"),
		NacksRecv:   optInt64(event, "nacks-received"),

		RTT:     optFloat(event, "rtt"),
		RTTNtp:  optInt64(rttVals, "ntp"),
		RTTLsr:  optInt64(rttVals, "lsr"),
		RTTDlsr: optInt64(rttVals, "dlsr"),

		InLinkQuality:       optFloat(event, "in-link-quality"),
		InMediaLinkQuality:  optFloat(event, "in-media-link-quality"),
		OutLinkQuality:      optFloat(event, "out-link-quality"),
		OutMediaLinkQuality: optFloat(event, "out-media-link-quality"),

		BytesSentLastSec:    optInt64(event, "bytes-sent-lastsec"),
		BytesRecvLastSec:    optInt64(event, "bytes-received-lastsec"),
		RetransmissionsRecv: optInt64(event, "retransmissions-received"),

		Timestamp: ts,
	}
}

// coreStatusValue renders the status value, folding a nonzero signal number
// into it as "<status> (<signum>)". A signal with no status renders the
// missing status as "null".
func coreStatusValue(event map[string]any) *string {
	var value *string
	if v, ok := event["status"]; ok && v != nil {
		s := stringOf(v)
		value = &s
	}
	if signum := optInt64(event, "signum"); signum != nil && *signum != 0 {
		base := "null"
		if value != nil {
			base = *value
		}
		s := fmt.Sprintf("%s (%d)", base, *signum)
		value = &s
	}
	return value
}
