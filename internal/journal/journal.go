// Package journal records applied classifications and closed segments for
// the lifetime of the process. The store is an in-memory SQLite database, so
// nothing outlives the process.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/gait.report/internal/classifier"
	"github.com/banshee-data/gait.report/internal/session"
	"github.com/banshee-data/gait.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoRun is returned by EndRun when no run is open.
var ErrNoRun = errors.New("no run in progress")

// Outcome says what happened to a closed segment.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeShort     Outcome = "short"
	OutcomeDiscarded Outcome = "discarded"
)

// OutcomeOf maps a tracker transition to the outcome of its closed segment.
func OutcomeOf(tr session.Transition) Outcome {
	switch {
	case tr.Committed:
		return OutcomeCommitted
	case tr.Discarded:
		return OutcomeDiscarded
	default:
		return OutcomeShort
	}
}

// Run is one start-to-end session.
type Run struct {
	ID      string     `json:"id"`
	Started time.Time  `json:"started"`
	Ended   *time.Time `json:"ended,omitempty"`
}

// SegmentRecord is a closed walking or running segment.
type SegmentRecord struct {
	RunID          string    `json:"run_id"`
	Kind           string    `json:"kind"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Outcome        Outcome   `json:"outcome"`
	Closed         time.Time `json:"closed"`
}

// Journal is safe for concurrent use.
type Journal struct {
	db    *sql.DB
	clock timeutil.Clock

	mu    sync.Mutex
	runID string
}

// Open creates the in-memory database and applies the embedded migrations.
func Open(ctx context.Context, clock timeutil.Clock) (*Journal, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// every new connection to :memory: is a separate empty database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	j := &Journal{db: db, clock: clock}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateUp applies all migrations. The migrate instance is not closed since
// that would close the shared database handle.
func (j *Journal) migrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (j *Journal) SchemaVersion() (uint, bool, error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Close closes the database, discarding everything recorded.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) nowMillis() int64 {
	return j.clock.Now().UnixMilli()
}

// BeginRun opens a new run and returns its id. A run still open is ended.
func (j *Journal) BeginRun(ctx context.Context) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.nowMillis()
	if j.runID != "" {
		if _, err := j.db.ExecContext(ctx, `UPDATE runs SET ended_ms = ? WHERE run_id = ?`, now, j.runID); err != nil {
			return "", fmt.Errorf("failed to end run: %w", err)
		}
	}

	id := uuid.NewString()
	if _, err := j.db.ExecContext(ctx, `INSERT INTO runs (run_id, started_ms) VALUES (?, ?)`, id, now); err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	j.runID = id
	return id, nil
}

// EndRun closes the current run.
func (j *Journal) EndRun(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.runID == "" {
		return ErrNoRun
	}
	if _, err := j.db.ExecContext(ctx, `UPDATE runs SET ended_ms = ? WHERE run_id = ?`, j.nowMillis(), j.runID); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	j.runID = ""
	return nil
}

// CurrentRun returns the id of the open run, or "".
func (j *Journal) CurrentRun() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordClassification stores one applied classification under runID. An
// empty runID records it outside any run.
func (j *Journal) RecordClassification(ctx context.Context, runID string, seq uint64, r classifier.Result) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO classifications (run_id, seq, movement, movement_raw, label, confidence, warning, recorded_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(runID), int64(seq), r.Movement.String(), r.MovementRaw, nullable(r.Label),
		r.Confidence(), nullable(r.Warning), j.nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("failed to record classification: %w", err)
	}
	return nil
}

// RecordSegment stores a closed segment under runID. An empty runID records
// it outside any run.
func (j *Journal) RecordSegment(ctx context.Context, runID string, seg session.Segment, outcome Outcome) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO segments (run_id, kind, elapsed_seconds, outcome, closed_ms)
		VALUES (?, ?, ?, ?, ?)`,
		nullable(runID), seg.Kind.String(), seg.ElapsedSeconds, string(outcome), j.nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("failed to record segment: %w", err)
	}
	return nil
}

// RecentConfidences returns up to n confidences, oldest first.
func (j *Journal) RecentConfidences(ctx context.Context, n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT confidence FROM (
			SELECT classification_id, confidence FROM classifications
			ORDER BY classification_id DESC LIMIT ?
		) ORDER BY classification_id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query confidences: %w", err)
	}
	defer rows.Close()

	out := make([]float64, 0, n)
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Segments returns the closed segments of a run in the order they closed. An
// empty runID selects segments recorded outside any run.
func (j *Journal) Segments(ctx context.Context, runID string) ([]SegmentRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT COALESCE(run_id, ''), kind, elapsed_seconds, outcome, closed_ms
		FROM segments WHERE COALESCE(run_id, '') = ?
		ORDER BY segment_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []SegmentRecord
	for rows.Next() {
		var (
			rec      SegmentRecord
			outcome  string
			closedMs int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Kind, &rec.ElapsedSeconds, &outcome, &closedMs); err != nil {
			return nil, err
		}
		rec.Outcome = Outcome(outcome)
		rec.Closed = time.UnixMilli(closedMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Runs lists every run since the last Clear, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT run_id, started_ms, ended_ms FROM runs ORDER BY started_ms, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &ended); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			r.Ended = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clear deletes everything and forgets the current run.
func (j *Journal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	for _, table := range []string{"classifications", "segments", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	j.runID = ""
	return nil
}
