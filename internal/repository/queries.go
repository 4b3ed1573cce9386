package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/telhawk-systems/rtc-telemetry/internal/models"
)

const queryTimeout = 15 * time.Second

// ListSessions returns the distinct sessions that have handle activity,
// newest identifiers first.
func (r *PostgresRepository) ListSessions(ctx context.Context) ([]models.SessionRef, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT session FROM handles
		 WHERE session IS NOT NULL
		 ORDER BY session DESC
		 LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRef
	for rows.Next() {
		var s models.SessionRef
		if err := rows.Scan(&s.Session); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListHandles returns the distinct handles observed within a session.
func (r *PostgresRepository) ListHandles(ctx context.Context, session int64) ([]models.HandleRef, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT handle FROM handles
		 WHERE session = $1 AND handle IS NOT NULL
		 ORDER BY handle DESC
		 LIMIT 1000`, session)
	if err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	defer rows.Close()

	var out []models.HandleRef
	for rows.Next() {
		var h models.HandleRef
		if err := rows.Scan(&h.Handle); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const seriesColumns = `
	SELECT
		to_timestamp(floor(extract(epoch from s.timestamp) / $%[1]d) * $%[1]d) AS ts,
		AVG(s.base)::double precision                   AS base,
		AVG(s.lsr)::double precision                    AS lsr,
		AVG(s.jitterlocal)::double precision            AS jitterlocal,
		AVG(s.jitterremote)::double precision           AS jitterremote,
		AVG(s.rtt)::double precision                    AS rtt,
		AVG(s.in_link_quality)::double precision        AS in_lq,
		AVG(s.in_media_link_quality)::double precision  AS in_mlq,
		AVG(s.out_link_quality)::double precision       AS out_lq,
		AVG(s.out_media_link_quality)::double precision AS out_mlq,
		SUM(s.lostlocal)::bigint                        AS lostlocal,
		SUM(s.lostremote)::bigint                       AS lostremote,
		SUM(s.packetssent)::bigint                      AS packetssent,
		SUM(s.packetsrecv)::bigint                      AS packetsrecv,
		SUM(s.nackssent)::bigint                        AS nackssent,
		SUM(s.nacksrecv)::bigint                        AS nacksrecv,
		SUM(s.bytessent)::bigint                        AS sum_bytes_sent,
		SUM(s.bytesrecv)::bigint                        AS sum_bytes_recv,
		AVG(s.bytes_sent_lastsec)::double precision     AS avg_bytes_sent_lastsec,
		AVG(s.bytes_recv_lastsec)::double precision     AS avg_bytes_recv_lastsec,
		SUM(s.retransmissions_recv)::bigint             AS retransmissions_recv`

const seriesProjection = `
	SELECT ts, base, lsr, jitterlocal, jitterremote, rtt,
	       in_lq, in_mlq, out_lq, out_mlq,
	       lostlocal, lostremote, packetssent, packetsrecv, nackssent, nacksrecv,
	       (sum_bytes_sent * 8.0 / $%[1]d)::double precision    AS tx_bps,
	       (sum_bytes_recv * 8.0 / $%[1]d)::double precision    AS rx_bps,
	       (avg_bytes_sent_lastsec * 8.0)::double precision     AS tx_bps_inst,
	       (avg_bytes_recv_lastsec * 8.0)::double precision     AS rx_bps_inst,
	       retransmissions_recv
	FROM binned
	ORDER BY ts ASC`

// StatsSeries aggregates media statistics for one session/handle pair into
// fixed-width time buckets. Byte counters become average bits per second
// over the bucket; the lastsec gauges become instantaneous bps.
func (r *PostgresRepository) StatsSeries(ctx context.Context, session, handle int64, from, to time.Time, stepSec int) ([]models.SeriesPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := "WITH binned AS (" + fmt.Sprintf(seriesColumns, 3) + `
		FROM stats s
		WHERE s.session = $1 AND s.handle = $2
		  AND s.timestamp >= $4 AND s.timestamp <= $5
		GROUP BY 1
	)` + fmt.Sprintf(seriesProjection, 3)

	rows, err := r.pool.Query(ctx, q, session, handle, stepSec, from, to)
	if err != nil {
		return nil, fmt.Errorf("stats series: %w", err)
	}
	defer rows.Close()
	return scanSeries(rows)
}

// StatsSeriesByCall is StatsSeries keyed by SIP call identifier: the
// session/handle pair is resolved from the correlation record first.
func (r *PostgresRepository) StatsSeriesByCall(ctx context.Context, callID string, from, to time.Time, stepSec int) ([]models.SeriesPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `WITH sh AS (
		SELECT session, handle FROM sip_calls
		WHERE call_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	), binned AS (` + fmt.Sprintf(seriesColumns, 2) + `
		FROM stats s
		JOIN sh ON s.session = sh.session AND s.handle = sh.handle
		WHERE s.timestamp >= $3 AND s.timestamp <= $4
		GROUP BY 1
	)` + fmt.Sprintf(seriesProjection, 2)

	rows, err := r.pool.Query(ctx, q, callID, stepSec, from, to)
	if err != nil {
		return nil, fmt.Errorf("stats series by call: %w", err)
	}
	defer rows.Close()
	return scanSeries(rows)
}

func scanSeries(rows pgx.Rows) ([]models.SeriesPoint, error) {
	var out []models.SeriesPoint
	for rows.Next() {
		var p models.SeriesPoint
		if err := rows.Scan(
			&p.TS, &p.Base, &p.Lsr, &p.JitterLocal, &p.JitterRemote, &p.RTT,
			&p.InLQ, &p.InMLQ, &p.OutLQ, &p.OutMLQ,
			&p.LostLocal, &p.LostRemote, &p.PacketsSent, &p.PacketsRecv, &p.NacksSent, &p.NacksRecv,
			&p.TxBps, &p.RxBps, &p.TxBpsInst, &p.RxBpsInst,
			&p.RetransRecv,
		); err != nil {
			return nil, fmt.Errorf("scan series point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentEvents returns the most recent ICE, DTLS and JSEP events for a
// session/handle pair, newest first.
func (r *PostgresRepository) RecentEvents(ctx context.Context, session, handle int64, limit int) ([]models.RecentEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT timestamp AS time, 'ICE' AS type, state, NULL::text AS detail
		   FROM ice WHERE session = $1 AND handle = $2
		 UNION ALL
		 SELECT timestamp, 'DTLS', state, NULL
		   FROM dtls WHERE session = $1 AND handle = $2
		 UNION ALL
		 SELECT timestamp, 'JSEP',
		        CASE WHEN offer THEN 'offer' ELSE 'answer' END,
		        LEFT(sdp, 160)
		   FROM sdps WHERE session = $1 AND handle = $2
		 ORDER BY time DESC
		 LIMIT $3`,
		session, handle, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []models.RecentEvent
	for rows.Next() {
		var e models.RecentEvent
		if err := rows.Scan(&e.Time, &e.Type, &e.State, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan recent event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// selectedPairRe decomposes a selected candidate pair line of the form
// "1.2.3.4:1234 [host,udp] <-> 5.6.7.8:5678 [srflx,udp]".
var selectedPairRe = regexp.MustCompile(`^\s*(\S+)\s+\[([^,]+),([^\]]+)\]\s+<->\s+(\S+)\s+\[([^,]+),([^\]]+)\]`)

func parseSelectedPair(selected string) *models.SelectedPairInfo {
	info := &models.SelectedPairInfo{Selected: selected}
	m := selectedPairRe.FindStringSubmatch(selected)
	if m == nil {
		return info
	}
	info.Local, info.LocalType, info.LocalProto = &m[1], &m[2], &m[3]
	info.Remote, info.RemoteType, info.RemoteProto = &m[4], &m[5], &m[6]
	return info
}

// ListSipCalls returns correlated calls newest first, each joined with the
// latest selected candidate pair observed on the call's handle.
func (r *PostgresRepository) ListSipCalls(ctx context.Context, f models.SipCallFilter) ([]models.SipCallSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := ""
	var vals []any
	addCond := func(cond string, v any) {
		vals = append(vals, v)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(vals))
	}
	if f.From != nil {
		addCond("sc.created_at >= $%d", *f.From)
	}
	if f.To != nil {
		addCond("sc.created_at <= $%d", *f.To)
	}
	if f.Search != "" {
		addCond("(sc.call_id ILIKE $%[1]d OR sc.from_uri ILIKE $%[1]d OR sc.to_uri ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	vals = append(vals, limit)

	q := fmt.Sprintf(`
		SELECT sc.call_id, sc.session, sc.handle, sc.from_uri, sc.to_uri, sc.direction, sc.created_at,
		       sp.selected
		FROM sip_calls sc
		LEFT JOIN LATERAL (
			SELECT sp.selected
			FROM selectedpairs sp
			WHERE sp.session = sc.session AND sp.handle = sc.handle
			ORDER BY sp.timestamp DESC
			LIMIT 1
		) sp ON TRUE
		%s
		ORDER BY sc.created_at DESC
		LIMIT $%d`, where, len(vals))

	rows, err := r.pool.Query(ctx, q, vals...)
	if err != nil {
		return nil, fmt.Errorf("list sip calls: %w", err)
	}
	defer rows.Close()

	var out []models.SipCallSummary
	for rows.Next() {
		var s models.SipCallSummary
		var selected *string
		if err := rows.Scan(
			&s.CallID, &s.Session, &s.Handle, &s.FromURI, &s.ToURI, &s.Direction, &s.CreatedAt,
			&selected,
		); err != nil {
			return nil, fmt.Errorf("scan sip call: %w", err)
		}
		if selected != nil {
			s.SelectedPair = parseSelectedPair(*selected)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSipCall returns the correlation record for one call identifier.
func (r *PostgresRepository) GetSipCall(ctx context.Context, callID string) (*models.SipCall, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c models.SipCall
	err := r.pool.QueryRow(ctx,
		`SELECT call_id, session, handle, from_uri, to_uri, direction, created_at
		 FROM sip_calls WHERE call_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		callID).Scan(&c.CallID, &c.Session, &c.Handle, &c.FromURI, &c.ToURI, &c.Direction, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sip call: %w", err)
	}
	return &c, nil
}

// EventsByCall returns the flag-style event timeline for a correlated call:
// ICE, DTLS and JSEP events always, slowlink notices when the optional
// table exists.
func (r *PostgresRepository) EventsByCall(ctx context.Context, callID string, from, to time.Time) (*models.CallEvents, error) {
	call, err := r.GetSipCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT timestamp AS ts, 'ICE' AS type, state AS value, NULL::text AS detail
		   FROM ice WHERE session = $1 AND handle = $2 AND timestamp BETWEEN $3 AND $4
		 UNION ALL
		 SELECT timestamp, 'DTLS', state, NULL
		   FROM dtls WHERE session = $1 AND handle = $2 AND timestamp BETWEEN $3 AND $4
		 UNION ALL
		 SELECT timestamp, 'JSEP', CASE WHEN offer THEN 'offer' ELSE 'answer' END, LEFT(sdp, 160)
		   FROM sdps WHERE session = $1 AND handle = $2 AND timestamp BETWEEN $3 AND $4
		 ORDER BY ts ASC`,
		call.Session, call.Handle, from, to)
	if err != nil {
		return nil, fmt.Errorf("events by call: %w", err)
	}
	defer rows.Close()

	result := &models.CallEvents{Session: call.Session, Handle: call.Handle}
	for rows.Next() {
		var e models.CallEvent
		if err := rows.Scan(&e.TS, &e.Type, &e.Value, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan call event: %w", err)
		}
		result.Events = append(result.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slowlinks, err := r.slowlinkEvents(ctx, call.Session, call.Handle, from, to)
	if err != nil {
		if errors.Is(err, ErrSchemaMissing) {
			return result, nil
		}
		return nil, err
	}
	result.Events = append(result.Events, slowlinks...)
	return result, nil
}

func (r *PostgresRepository) slowlinkEvents(ctx context.Context, session, handle *int64, from, to time.Time) ([]models.CallEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT timestamp AS ts, 'SLOWLINK' AS type, NULL::text AS value, LEFT(payload::text, 200) AS detail
		 FROM slowlinks
		 WHERE session = $1 AND handle = $2 AND timestamp BETWEEN $3 AND $4
		 ORDER BY ts ASC`,
		session, handle, from, to)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, ErrSchemaMissing
		}
		return nil, fmt.Errorf("slowlink events: %w", err)
	}
	defer rows.Close()

	var out []models.CallEvent
	for rows.Next() {
		var e models.CallEvent
		if err := rows.Scan(&e.TS, &e.Type, &e.Value, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan slowlink event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListSipPluginEvents returns stored SIP plugin events for a
// session/handle pair in chronological order, for ladder assembly.
func (r *PostgresRepository) ListSipPluginEvents(ctx context.Context, session, handle int64, from, to *time.Time, limit int) ([]models.PluginEventRow, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `SELECT event, timestamp FROM plugins
	      WHERE session = $1 AND handle = $2 AND plugin = $3`
	vals := []any{session, handle, models.SIPPlugin}
	if from != nil {
		vals = append(vals, *from)
		q += fmt.Sprintf(" AND timestamp >= $%d", len(vals))
	}
	if to != nil {
		vals = append(vals, *to)
		q += fmt.Sprintf(" AND timestamp <= $%d", len(vals))
	}
	if limit <= 0 || limit > 10000 {
		limit = 2000
	}
	vals = append(vals, limit)
	q += fmt.Sprintf(" ORDER BY timestamp ASC LIMIT $%d", len(vals))

	rows, err := r.pool.Query(ctx, q, vals...)
	if err != nil {
		return nil, fmt.Errorf("list sip plugin events: %w", err)
	}
	defer rows.Close()

	var out []models.PluginEventRow
	for rows.Next() {
		var p models.PluginEventRow
		if err := rows.Scan(&p.Event, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan plugin event: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
