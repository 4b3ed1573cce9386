package models

import "time"

// Event type codes emitted by the media server. The numeric values are part
// of the wire protocol and must not be renumbered.
const (
	KindSession   = 1
	KindHandle    = 2
	KindJSEP      = 8
	KindWebRTC    = 16
	KindMedia     = 32
	KindPlugin    = 64
	KindTransport = 128
	KindCore      = 256
)

// SIPPlugin is the plugin identifier whose events carry SIP dialogs.
const SIPPlugin = "janus.plugin.sip"

// Record is the closed set of normalized records the classifier can produce.
// Every record carries the session/handle pair it was scoped to (either may
// be nil) and the normalized event timestamp.
type Record interface {
	isRecord()
}

// SessionEvent records a session lifecycle notification (kind 1).
type SessionEvent struct {
	Session   *int64
	Name      *string
	Timestamp time.Time
}

// HandleEvent records a handle attach/detach notification (kind 2).
type HandleEvent struct {
	Session   *int64
	Handle    *int64
	Name      *string
	Plugin    *string
	Timestamp time.Time
}

// JSEPRecord records one offer/answer negotiation event (kind 8).
type JSEPRecord struct {
	Session   *int64
	Handle    *int64
	Remote    bool
	Offer     bool
	SDP       *string
	Timestamp time.Time
}

// IceRecord records an ICE state transition (kind 16, ice sub-kind).
type IceRecord struct {
	Session   *int64
	Handle    *int64
	Stream    *int64
	Component *int64
	State     string
	Timestamp time.Time
}

// SelectedPairRecord records the candidate pair chosen by ICE
// (kind 16, selected-pair sub-kind).
type SelectedPairRecord struct {
	Session   *int64
	Handle    *int64
	Stream    *int64
	Component *int64
	Pair      string
	Timestamp time.Time
}

// DtlsRecord records a DTLS handshake state transition (kind 16, dtls sub-kind).
type DtlsRecord struct {
	Session   *int64
	Handle    *int64
	State     string
	Timestamp time.Time
}

// ConnectionRecord records a PeerConnection state transition
// (kind 16, connection sub-kind).
type ConnectionRecord struct {
	Session   *int64
	Handle    *int64
	State     string
	Timestamp time.Time
}

// MediaRecord records a medium starting or stopping to receive
// (kind 32, receiving sub-kind).
type MediaRecord struct {
	Session   *int64
	Handle    *int64
	Medium    *string
	Receiving bool
	Timestamp time.Time
}

// StatsRecord records one periodic per-medium statistics report
// (kind 32, base sub-kind). Counters that were absent from the report stay
// nil and persist as NULL; a sparse report must still insert.
type StatsRecord struct {
	Session *int64
	Handle  *int64
	Subtype *int64
	Mid     *string
	Mindex  *int64
	Codec   *string
	Medium  *string

	Base         *int64
	Lsr          *int64
	LostLocal    *int64
	LostRemote   *int64
	JitterLocal  *float64
	JitterRemote *float64

	PacketsSent *int64
	PacketsRecv *int64
	BytesSent   *int64
	BytesRecv   *int64
	NacksSent   *int64
	NacksRecv   *int64

	RTT     *float64
	RTTNtp  *int64
	RTTLsr  *int64
	RTTDlsr *int64

	InLinkQuality       *float64
	InMediaLinkQuality  *float64
	OutLinkQuality      *float64
	OutMediaLinkQuality *float64

	BytesSentLastSec    *int64
	BytesRecvLastSec    *int64
	RetransmissionsRecv *int64

	Timestamp time.Time
}

// PluginEvent records an opaque plugin-originated event (kind 64). Event is
// the nested data payload re-serialized as JSON text; a missing payload is
// stored as the literal "null".
type PluginEvent struct {
	Session   *int64
	Handle    *int64
	Plugin    *string
	Event     string
	Timestamp time.Time
}

// TransportEvent records an opaque transport-originated event (kind 128).
// Structurally identical to PluginEvent, kept as its own table.
type TransportEvent struct {
	Session   *int64
	Handle    *int64
	Plugin    *string
	Event     string
	Timestamp time.Time
}

// CoreStatusRecord records a server-level status change (kind 256). Not
// session-scoped. When the event carried a signal number the value embeds
// it, e.g. "stopped (15)".
type CoreStatusRecord struct {
	Name      string
	Value     *string
	Timestamp time.Time
}

// SlowlinkRecord carries a degraded-link notification payload. Its backing
// table is optional schema; writes may be refused with ErrSchemaMissing.
type SlowlinkRecord struct {
	Session   *int64
	Handle    *int64
	Payload   []byte
	Timestamp time.Time
}

// SipCall is the correlation record keyed by SIP Call-ID. It is the only
// mutable record: later events for the same call update session, handle and
// the URIs, while direction is filled once and then sticky.
type SipCall struct {
	CallID    string    `json:"call_id"`
	Session   *int64    `json:"session"`
	Handle    *int64    `json:"handle"`
	FromURI   *string   `json:"from_uri"`
	ToURI     *string   `json:"to_uri"`
	Direction *string   `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

func (*SessionEvent) isRecord()       {}
func (*HandleEvent) isRecord()        {}
func (*JSEPRecord) isRecord()         {}
func (*IceRecord) isRecord()          {}
func (*SelectedPairRecord) isRecord() {}
func (*DtlsRecord) isRecord()         {}
func (*ConnectionRecord) isRecord()   {}
func (*MediaRecord) isRecord()        {}
func (*StatsRecord) isRecord()        {}
func (*PluginEvent) isRecord()        {}
func (*TransportEvent) isRecord()     {}
func (*CoreStatusRecord) isRecord()   {}
