package models

import "time"

// SessionRef is one row of the session listing.
type SessionRef struct {
	Session int64 `json:"session"`
}

// HandleRef is one row of the handle listing for a session.
type HandleRef struct {
	Handle int64 `json:"handle"`
}

// SeriesPoint is one time bucket of aggregated media statistics.
// Averages stay nil when the bucket had no samples for that gauge.
type SeriesPoint struct {
	TS           time.Time `json:"ts"`
	Base         *float64  `json:"base,omitempty"`
	Lsr          *float64  `json:"lsr,omitempty"`
	JitterLocal  *float64  `json:"jitterlocal"`
	JitterRemote *float64  `json:"jitterremote"`
	RTT          *float64  `json:"rtt"`
	InLQ         *float64  `json:"in_lq"`
	InMLQ        *float64  `json:"in_mlq"`
	OutLQ        *float64  `json:"out_lq"`
	OutMLQ       *float64  `json:"out_mlq"`
	LostLocal    *int64    `json:"lostlocal"`
	LostRemote   *int64    `json:"lostremote"`
	PacketsSent  *int64    `json:"packetssent"`
	PacketsRecv  *int64    `json:"packetsrecv"`
	NacksSent    *int64    `json:"nackssent"`
	NacksRecv    *int64    `json:"nacksrecv"`
	TxBps        *float64  `json:"tx_bps"`
	RxBps        *float64  `json:"rx_bps"`
	TxBpsInst    *float64  `json:"tx_bps_inst"`
	RxBpsInst    *float64  `json:"rx_bps_inst"`
	RetransRecv  *int64    `json:"retransmissions_recv"`
}

// RecentEvent is one row of the recent ICE/DTLS/JSEP event listing.
type RecentEvent struct {
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
	State  *string   `json:"state"`
	Detail *string   `json:"detail"`
}

// SipCallFilter narrows the SIP call listing.
type SipCallFilter struct {
	From   *time.Time
	To     *time.Time
	Search string
	Limit  int
}

// SelectedPairInfo is the decomposition of a selected candidate pair line,
// e.g. "1.2.3.4:5 [host,udp] <-> 6.7.8.9:10 [srflx,udp]".
type SelectedPairInfo struct {
	Selected    string  `json:"sp_selected"`
	Local       *string `json:"sp_local"`
	LocalType   *string `json:"sp_local_type"`
	LocalProto  *string `json:"sp_local_proto"`
	Remote      *string `json:"sp_remote"`
	RemoteType  *string `json:"sp_remote_type"`
	RemoteProto *string `json:"sp_remote_proto"`
}

// SipCallSummary is one row of the SIP call listing, joined with the most
// recent selected pair observed on the call's handle.
type SipCallSummary struct {
	SipCall
	SelectedPair *SelectedPairInfo `json:"selected_pair,omitempty"`
}

// CallEvent is one flag-style event on a call's timeline.
type CallEvent struct {
	TS     time.Time `json:"ts"`
	Type   string    `json:"type"`
	Value  *string   `json:"value"`
	Detail *string   `json:"detail"`
}

// CallEvents is the event timeline for one correlated call.
type CallEvents struct {
	Session *int64      `json:"session"`
	Handle  *int64      `json:"handle"`
	Events  []CallEvent `json:"events"`
}

// PluginEventRow is a stored plugin event as read back for flow assembly.
type PluginEventRow struct {
	Event     string
	Timestamp time.Time
}

// SipFlowMessage is one rung of a SIP ladder diagram.
type SipFlowMessage struct {
	TS      time.Time `json:"ts"`
	Dir     string    `json:"dir"`
	Kind    string    `json:"kind"`
	Label   string    `json:"label"`
	FromURI *string   `json:"from_uri,omitempty"`
	ToURI   *string   `json:"to_uri,omitempty"`
	CSeq    *string   `json:"cseq,omitempty"`
}

// SipFlow is the assembled ladder for one call or session/handle pair.
type SipFlow struct {
	Session      *int64           `json:"session,omitempty"`
	Handle       *int64           `json:"handle,omitempty"`
	Participants []string         `json:"participants"`
	Messages     []SipFlowMessage `json:"messages"`
}
