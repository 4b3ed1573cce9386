package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/telhawk-systems/rtc-telemetry/internal/models"
)

// setupTestDatabase creates a PostgreSQL testcontainer and applies the core
// migration. The optional slowlinks migration is NOT applied so tests can
// exercise both sides of the missing-table behavior.
func setupTestDatabase(t *testing.T) (*PostgresRepository, string, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("telemetry_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := applyMigration(connStr, "001_init.up.sql"); err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo, err := NewPostgresRepository(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create repository: %v", err)
	}

	cleanup := func() {
		repo.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return repo, connStr, cleanup
}

func applyMigration(connStr, name string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrationSQL, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

func i64(v int64) *int64     { return &v }
func str(v string) *string   { return &v }
func f64(v float64) *float64 { return &v }

func TestInsertAndListSessions(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.InsertSessionEvent(ctx, &models.SessionEvent{
		Session: i64(100), Name: str("created"), Timestamp: now,
	}); err != nil {
		t.Fatalf("Failed to insert session event: %v", err)
	}
	if err := repo.InsertHandleEvent(ctx, &models.HandleEvent{
		Session: i64(100), Handle: i64(200), Name: str("attached"),
		Plugin: str(models.SIPPlugin), Timestamp: now,
	}); err != nil {
		t.Fatalf("Failed to insert handle event: %v", err)
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Session != 100 {
		t.Errorf("Expected one session 100, got %+v", sessions)
	}

	handles, err := repo.ListHandles(ctx, 100)
	if err != nil {
		t.Fatalf("Failed to list handles: %v", err)
	}
	if len(handles) != 1 || handles[0].Handle != 200 {
		t.Errorf("Expected one handle 200, got %+v", handles)
	}
}

func TestInsertStatsSparse(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	// A report with only a handful of counters present must still insert.
	rec := &models.StatsRecord{
		Session:   i64(100),
		Handle:    i64(200),
		Medium:    str("audio"),
		Base:      i64(48000),
		RTT:       f64(23.5),
		Timestamp: time.Now().UTC(),
	}
	if err := repo.InsertStats(ctx, rec); err != nil {
		t.Fatalf("Failed to insert sparse stats: %v", err)
	}
}

func TestStatsSeries(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rec := &models.StatsRecord{
			Session:     i64(100),
			Handle:      i64(200),
			Base:        i64(48000),
			RTT:         f64(20 + float64(i)),
			BytesSent:   i64(1000),
			PacketsSent: i64(10),
			Timestamp:   base.Add(time.Duration(i) * 15 * time.Second),
		}
		if err := repo.InsertStats(ctx, rec); err != nil {
			t.Fatalf("Failed to insert stats: %v", err)
		}
	}

	points, err := repo.StatsSeries(ctx, 100, 200, base.Add(-time.Minute), base.Add(time.Hour), 60)
	if err != nil {
		t.Fatalf("Failed to query series: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected one 60s bucket, got %d", len(points))
	}
	p := points[0]
	if p.PacketsSent == nil || *p.PacketsSent != 40 {
		t.Errorf("Expected summed packetssent 40, got %+v", p.PacketsSent)
	}
	// 4000 bytes over a 60 second bucket.
	if p.TxBps == nil || *p.TxBps != 4000*8.0/60 {
		t.Errorf("Unexpected tx_bps: %+v", p.TxBps)
	}
}

func TestUpsertSipCallStickyDirection(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	first := &models.SipCall{
		CallID:    "abc@pbx.local",
		Session:   i64(100),
		Handle:    i64(200),
		FromURI:   str("sip:alice@pbx.local"),
		Direction: str("in"),
		CreatedAt: now,
	}
	if err := repo.UpsertSipCall(ctx, first); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	// A later event moves the call to a new handle, adds the peer URI and
	// claims the opposite direction. Direction must not change.
	second := &models.SipCall{
		CallID:    "abc@pbx.local",
		Session:   i64(100),
		Handle:    i64(201),
		FromURI:   str("sip:alice@pbx.local"),
		ToURI:     str("sip:bob@pbx.local"),
		Direction: str("out"),
		CreatedAt: now.Add(time.Second),
	}
	if err := repo.UpsertSipCall(ctx, second); err != nil {
		t.Fatalf("Failed to upsert second: %v", err)
	}

	call, err := repo.GetSipCall(ctx, "abc@pbx.local")
	if err != nil {
		t.Fatalf("Failed to get call: %v", err)
	}
	if call.Handle == nil || *call.Handle != 201 {
		t.Errorf("Expected handle updated to 201, got %+v", call.Handle)
	}
	if call.ToURI == nil || *call.ToURI != "sip:bob@pbx.local" {
		t.Errorf("Expected to_uri updated, got %+v", call.ToURI)
	}
	if call.Direction == nil || *call.Direction != "in" {
		t.Errorf("Expected direction to stay 'in', got %+v", call.Direction)
	}

	// A nil direction on yet another update must not erase the stored one.
	third := &models.SipCall{CallID: "abc@pbx.local", Session: i64(100), Handle: i64(201), CreatedAt: now}
	if err := repo.UpsertSipCall(ctx, third); err != nil {
		t.Fatalf("Failed to upsert third: %v", err)
	}
	call, err = repo.GetSipCall(ctx, "abc@pbx.local")
	if err != nil {
		t.Fatalf("Failed to get call: %v", err)
	}
	if call.Direction == nil || *call.Direction != "in" {
		t.Errorf("Expected direction to survive nil update, got %+v", call.Direction)
	}
}

func TestGetSipCallNotFound(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()

	_, err := repo.GetSipCall(context.Background(), "missing@nowhere")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListSipCallsWithSelectedPair(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.UpsertSipCall(ctx, &models.SipCall{
		CallID: "pair@pbx", Session: i64(100), Handle: i64(200),
		FromURI: str("sip:alice@pbx"), CreatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := repo.InsertSelectedPair(ctx, &models.SelectedPairRecord{
		Session: i64(100), Handle: i64(200), Stream: i64(1), Component: i64(1),
		Pair:      "10.0.0.1:41000 [host,udp] <-> 192.0.2.9:5004 [srflx,udp]",
		Timestamp: now,
	}); err != nil {
		t.Fatalf("Failed to insert selected pair: %v", err)
	}

	calls, err := repo.ListSipCalls(ctx, models.SipCallFilter{})
	if err != nil {
		t.Fatalf("Failed to list calls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("Expected one call, got %d", len(calls))
	}
	sp := calls[0].SelectedPair
	if sp == nil {
		t.Fatal("Expected a selected pair on the call")
	}
	if sp.Local == nil || *sp.Local != "10.0.0.1:41000" {
		t.Errorf("Unexpected local address: %+v", sp.Local)
	}
	if sp.RemoteType == nil || *sp.RemoteType != "srflx" {
		t.Errorf("Unexpected remote type: %+v", sp.RemoteType)
	}
}

func TestListSipCallsSearchFilter(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, c := range []models.SipCall{
		{CallID: "one@pbx", FromURI: str("sip:alice@pbx"), CreatedAt: now},
		{CallID: "two@pbx", FromURI: str("sip:bob@pbx"), CreatedAt: now},
	} {
		c := c
		if err := repo.UpsertSipCall(ctx, &c); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	calls, err := repo.ListSipCalls(ctx, models.SipCallFilter{Search: "alice"})
	if err != nil {
		t.Fatalf("Failed to list calls: %v", err)
	}
	if len(calls) != 1 || calls[0].CallID != "one@pbx" {
		t.Errorf("Expected only alice's call, got %+v", calls)
	}
}

func TestEventsByCall(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.UpsertSipCall(ctx, &models.SipCall{
		CallID: "timeline@pbx", Session: i64(100), Handle: i64(200), CreatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := repo.InsertIce(ctx, &models.IceRecord{
		Session: i64(100), Handle: i64(200), State: "connected", Timestamp: now,
	}); err != nil {
		t.Fatalf("Failed to insert ice: %v", err)
	}
	if err := repo.InsertDtls(ctx, &models.DtlsRecord{
		Session: i64(100), Handle: i64(200), State: "connected", Timestamp: now.Add(time.Second),
	}); err != nil {
		t.Fatalf("Failed to insert dtls: %v", err)
	}

	// Slowlinks table does not exist yet; the timeline must still answer.
	result, err := repo.EventsByCall(ctx, "timeline@pbx", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to query events: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(result.Events))
	}
	if result.Events[0].Type != "ICE" || result.Events[1].Type != "DTLS" {
		t.Errorf("Expected chronological ICE then DTLS, got %+v", result.Events)
	}
}

func TestInsertSlowlinkSchemaMissing(t *testing.T) {
	repo, connStr, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	rec := &models.SlowlinkRecord{
		Session: i64(100), Handle: i64(200),
		Payload:   []byte(`{"media":"video","uplink":true}`),
		Timestamp: time.Now().UTC(),
	}
	if err := repo.InsertSlowlink(ctx, rec); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("Expected ErrSchemaMissing before the migration, got %v", err)
	}

	if err := applyMigration(connStr, "002_slowlinks.up.sql"); err != nil {
		t.Fatalf("Failed to apply slowlinks migration: %v", err)
	}
	if err := repo.InsertSlowlink(ctx, rec); err != nil {
		t.Fatalf("Expected insert to succeed after migration, got %v", err)
	}
}

func TestListSipPluginEvents(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, ev := range []string{
		`{"event":"sip-out","sip":"INVITE sip:bob@pbx SIP/2.0"}`,
		`{"event":"sip-in","sip":"SIP/2.0 200 OK"}`,
	} {
		if err := repo.InsertPluginEvent(ctx, &models.PluginEvent{
			Session: i64(100), Handle: i64(200), Plugin: str(models.SIPPlugin),
			Event: ev, Timestamp: now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("Failed to insert plugin event: %v", err)
		}
	}
	// Another plugin's event on the same handle must not leak in.
	if err := repo.InsertPluginEvent(ctx, &models.PluginEvent{
		Session: i64(100), Handle: i64(200), Plugin: str("janus.plugin.echotest"),
		Event: `{"echo":true}`, Timestamp: now,
	}); err != nil {
		t.Fatalf("Failed to insert foreign plugin event: %v", err)
	}

	rows, err := repo.ListSipPluginEvents(ctx, 100, 200, nil, nil, 0)
	if err != nil {
		t.Fatalf("Failed to list plugin events: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 SIP rows, got %d", len(rows))
	}
	if rows[0].Timestamp.After(rows[1].Timestamp) {
		t.Error("Expected chronological order")
	}
}

func TestRecentEvents(t *testing.T) {
	repo, _, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.InsertIce(ctx, &models.IceRecord{
		Session: i64(100), Handle: i64(200), State: "gathering", Timestamp: now,
	}); err != nil {
		t.Fatalf("Failed to insert ice: %v", err)
	}
	if err := repo.InsertJSEP(ctx, &models.JSEPRecord{
		Session: i64(100), Handle: i64(200), Offer: true,
		SDP: str("v=0\r\no=- 1 1 IN IP4 0.0.0.0"), Timestamp: now.Add(time.Second),
	}); err != nil {
		t.Fatalf("Failed to insert jsep: %v", err)
	}

	events, err := repo.RecentEvents(ctx, 100, 200, 50)
	if err != nil {
		t.Fatalf("Failed to query recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Type != "JSEP" {
		t.Errorf("Expected JSEP first, got %s", events[0].Type)
	}
	if events[0].State == nil || *events[0].State != "offer" {
		t.Errorf("Expected offer state, got %+v", events[0].State)
	}
}
