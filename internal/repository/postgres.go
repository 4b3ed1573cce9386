package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/rtc-telemetry/internal/models"
)

const writeTimeout = 5 * time.Second

// PostgresRepository is the single shared persistence resource of the
// collector. It owns the pgx connection pool; the pool bounds concurrency
// across all inbound requests.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close drains and closes the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Ping reports whether the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) InsertSessionEvent(ctx context.Context, rec *models.SessionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (session, event, timestamp) VALUES ($1, $2, $3)`,
		rec.Session, rec.Name, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertHandleEvent(ctx context.Context, rec *models.HandleEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO handles (session, handle, event, plugin, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		rec.Session, rec.Handle, rec.Name, rec.Plugin, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert handle event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertJSEP(ctx context.Context, rec *models.JSEPRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO sdps (session, handle, remote, offer, sdp, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Session, rec.Handle, rec.Remote, rec.Offer, rec.SDP, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert jsep record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertIce(ctx context.Context, rec *models.IceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO ice (session, handle, stream, component, state, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Session, rec.Handle, rec.Stream, rec.Component, rec.State, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert ice record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertSelectedPair(ctx context.Context, rec *models.SelectedPairRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO selectedpairs (session, handle, stream, component, selected, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Session, rec.Handle, rec.Stream, rec.Component, rec.Pair, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert selected pair: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertDtls(ctx context.Context, rec *models.DtlsRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO dtls (session, handle, state, timestamp) VALUES ($1, $2, $3, $4)`,
		rec.Session, rec.Handle, rec.State, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert dtls record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertConnection(ctx context.Context, rec *models.ConnectionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO connections (session, handle, state, timestamp) VALUES ($1, $2, $3, $4)`,
		rec.Session, rec.Handle, rec.State, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert connection record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertMedia(ctx context.Context, rec *models.MediaRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO media (session, handle, medium, receiving, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		rec.Session, rec.Handle, rec.Medium, rec.Receiving, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert media record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertStats(ctx context.Context, rec *models.StatsRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO stats
		   (session, handle, subtype, mid, mindex, codec, medium,
		    base, lsr, lostlocal, lostremote, jitterlocal, jitterremote,
		    packetssent, packetsrecv, bytessent, bytesrecv, nackssent, nacksrecv,
		    rtt, rtt_ntp, rtt_lsr, rtt_dlsr,
		    in_link_quality, in_media_link_quality, out_link_quality, out_media_link_quality,
		    bytes_sent_lastsec, bytes_recv_lastsec, retransmissions_recv,
		    timestamp)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7,
		    $8, $9, $10, $11, $12, $13,
		    $14, $15, $16, $17, $18, $19,
		    $20, $21, $22, $23,
		    $24, $25, $26, $27,
		    $28, $29, $30,
		    $31)`,
		rec.Session, rec.Handle, rec.Subtype, rec.Mid, rec.Mindex, rec.Codec, rec.Medium,
		rec.Base, rec.Lsr, rec.LostLocal, rec.LostRemote, rec.JitterLocal, rec.JitterRemote,
		rec.PacketsSent, rec.PacketsRecv, rec.BytesSent, rec.BytesRecv, rec.NacksSent, rec.NacksRecv,
		rec.RTT, rec.RTTNtp, rec.RTTLsr, rec.RTTDlsr,
		rec.InLinkQuality, rec.InMediaLinkQuality, rec.OutLinkQuality, rec.OutMediaLinkQuality,
		rec.BytesSentLastSec, rec.BytesRecvLastSec, rec.RetransmissionsRecv,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert stats record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertPluginEvent(ctx context.Context, rec *models.PluginEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO plugins (session, handle, plugin, event, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		rec.Session, rec.Handle, rec.Plugin, rec.Event, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert plugin event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertTransportEvent(ctx context.Context, rec *models.TransportEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO transports (session, handle, plugin, event, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		rec.Session, rec.Handle, rec.Plugin, rec.Event, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transport event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertCoreStatus(ctx context.Context, rec *models.CoreStatusRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO core (name, value, timestamp) VALUES ($1, $2, $3)`,
		rec.Name, rec.Value, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert core status: %w", err)
	}
	return nil
}

// UpsertSipCall inserts or merges a SIP correlation record in a single
// atomic statement. Session, handle and the URIs always take the incoming
// value; direction keeps the first non-null value ever stored (COALESCE on
// the existing row), so a later event without direction cannot erase it.
func (r *PostgresRepository) UpsertSipCall(ctx context.Context, rec *models.SipCall) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO sip_calls (session, handle, call_id, from_uri, to_uri, direction, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (call_id) DO UPDATE
		   SET session   = EXCLUDED.session,
		       handle    = EXCLUDED.handle,
		       from_uri  = EXCLUDED.from_uri,
		       to_uri    = EXCLUDED.to_uri,
		       direction = COALESCE(sip_calls.direction, EXCLUDED.direction)`,
		rec.Session, rec.Handle, rec.CallID, rec.FromURI, rec.ToURI, rec.Direction, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert sip call: %w", err)
	}
	return nil
}

// InsertSlowlink writes a degraded-link payload to the optional slowlinks
// table. A missing table is reported as ErrSchemaMissing so the caller can
// disable the feature instead of failing the ingestion.
func (r *PostgresRepository) InsertSlowlink(ctx context.Context, rec *models.SlowlinkRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO slowlinks (session, handle, payload, timestamp) VALUES ($1, $2, $3, $4)`,
		rec.Session, rec.Handle, rec.Payload, rec.Timestamp,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return ErrSchemaMissing
		}
		return fmt.Errorf("insert slowlink: %w", err)
	}
	return nil
}

// isUndefinedTable reports whether err is PostgreSQL's undefined_table
// error (SQLSTATE 42P01).
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
