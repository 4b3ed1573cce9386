package service

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/telhawk-systems/rtc-telemetry/internal/models"
)

// Flow assembly turns stored SIP plugin events back into ladder diagrams.
// Each plugin event may carry the raw SIP message under "sip" and a
// direction marker under "event" ("sip-in"/"sip-out").

var (
	sipResponseRe = regexp.MustCompile(`^SIP/2\.0\s+(\d{3})\s+(.*)$`)
	sipRequestRe  = regexp.MustCompile(`^([A-Z]+)\s+(\S+)\s+SIP/2\.0$`)
	cseqRe        = regexp.MustCompile(`(?mi)^\s*CSeq:\s*([^\r\n]+)`)
)

type sipMessage struct {
	method string
	code   int
	reason string
	from   *string
	to     *string
	cseq   *string
}

// parseSipRaw pulls the start line and a few headers out of a raw SIP
// message. Anything it cannot parse stays zero-valued.
func parseSipRaw(raw string) sipMessage {
	var out sipMessage
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return out
	}

	start := strings.TrimSpace(lines[0])
	if m := sipResponseRe.FindStringSubmatch(start); m != nil {
		out.code, _ = strconv.Atoi(m[1])
		out.reason = m[2]
	} else if m := sipRequestRe.FindStringSubmatch(start); m != nil {
		out.method = m[1]
	}

	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "from:"):
			out.from = headerValue(line)
		case strings.HasPrefix(lower, "to:"):
			out.to = headerValue(line)
		case strings.HasPrefix(lower, "cseq:"):
			out.cseq = headerValue(line)
		}
	}
	return out
}

func headerValue(line string) *string {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	v := strings.TrimSpace(parts[1])
	return &v
}

// callIDPattern matches a Call-ID header carrying exactly the given dialog
// identifier, anchored to line boundaries.
func callIDPattern(callID string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|\r?\n)\s*Call-ID\s*:\s*` + regexp.QuoteMeta(callID) + `(\r?\n|$)`)
}

// FlowByCall assembles the ladder for one correlated call. Plugin events on
// the call's session/handle that belong to other dialogs are filtered out
// by Call-ID, either from the event's own field or from the raw message.
func FlowByCall(call *models.SipCall, rows []models.PluginEventRow) models.SipFlow {
	callRe := callIDPattern(call.CallID)

	peer := "SIP peer"
	if call.ToURI != nil {
		peer = *call.ToURI
	} else if call.FromURI != nil {
		peer = *call.FromURI
	}

	flow := models.SipFlow{
		Participants: []string{"Janus", peer},
		Messages:     []models.SipFlowMessage{},
	}

	for _, row := range rows {
		ev, ok := decodeEvent(row.Event)
		if !ok {
			continue
		}

		belongs := false
		if id := optString(ev, "call-id"); id != nil && *id == call.CallID {
			belongs = true
		} else if raw := optString(ev, "sip"); raw != nil && callRe.MatchString(*raw) {
			belongs = true
		}
		if !belongs {
			continue
		}

		dir := "in"
		if marker := optString(ev, "event"); marker != nil && *marker == "sip-out" {
			dir = "out"
		}

		label := "SIP"
		var cseq *string
		if raw := optString(ev, "sip"); raw != nil && *raw != "" {
			start := strings.TrimSpace(strings.SplitN(strings.ReplaceAll(*raw, "\r\n", "\n"), "\n", 2)[0])
			if sipResponseRe.MatchString(start) {
				label = start
			} else if fields := strings.Fields(start); len(fields) > 0 {
				label = fields[0]
			}
			if m := cseqRe.FindStringSubmatch(*raw); m != nil {
				v := strings.TrimSpace(m[1])
				cseq = &v
			}
		} else if marker := optString(ev, "event"); marker != nil {
			label = *marker
			if id := optString(ev, "call-id"); id != nil {
				v := "call-id:" + *id
				cseq = &v
			}
		}

		flow.Messages = append(flow.Messages, models.SipFlowMessage{
			TS:    row.Timestamp,
			Dir:   dir,
			Kind:  "request",
			Label: label,
			CSeq:  cseq,
		})
	}
	return flow
}

// FlowBySessionHandle assembles the ladder for every SIP message seen on a
// session/handle pair, without Call-ID filtering. Messages with no parsable
// raw payload still render from the event marker.
func FlowBySessionHandle(session, handle int64, rows []models.PluginEventRow) models.SipFlow {
	flow := models.SipFlow{
		Session:      &session,
		Handle:       &handle,
		Participants: []string{"Janus", "SIP peer"},
		Messages:     []models.SipFlowMessage{},
	}

	for _, row := range rows {
		ev, ok := decodeEvent(row.Event)
		if !ok {
			continue
		}

		dir := "out"
		switch {
		case markerIs(ev, "event", "sip-in"), markerIs(ev, "direction", "incoming"):
			dir = "in"
		case markerIs(ev, "event", "sip-out"), markerIs(ev, "direction", "outgoing"):
			dir = "out"
		}

		var parsed sipMessage
		if raw := optString(ev, "sip"); raw != nil {
			parsed = parseSipRaw(*raw)
		}

		kind := "response"
		label := "SIP"
		switch {
		case parsed.method != "":
			kind = "request"
			label = parsed.method
		case parsed.code != 0 && parsed.reason != "":
			label = strconv.Itoa(parsed.code) + " " + parsed.reason
		case parsed.code != 0:
			label = strconv.Itoa(parsed.code)
		}

		flow.Messages = append(flow.Messages, models.SipFlowMessage{
			TS:      row.Timestamp,
			Dir:     dir,
			Kind:    kind,
			Label:   label,
			FromURI: parsed.from,
			ToURI:   parsed.to,
			CSeq:    parsed.cseq,
		})
	}
	return flow
}

func markerIs(ev map[string]any, key, want string) bool {
	s := optString(ev, key)
	return s != nil && *s == want
}

func decodeEvent(text string) (map[string]any, bool) {
	var ev map[string]any
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return nil, false
	}
	return ev, ev != nil
}
