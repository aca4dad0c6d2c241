// Package store persists screening results in SQLite. Only derived metrics
// and scores are stored; landmark frames never reach disk through this package.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/lightscreen/lightscreen/screen"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get for an unknown session ID.
var ErrNotFound = errors.New("result not found")

// Result is one stored session outcome.
type Result struct {
	SessionID   string                 `json:"session_id"`
	RecordedAt  time.Time              `json:"recorded_at"`
	State       screen.PhaseKind       `json:"state"`
	AbortReason string                 `json:"abort_reason,omitempty"`
	Threshold   float64                `json:"ear_threshold"`
	Assessment  *screen.RiskAssessment `json:"assessment,omitempty"`
	Metrics     *screen.SessionMetrics `json:"metrics,omitempty"`
	Caveats     []string               `json:"caveats,omitempty"`
}

// NewResult builds a Result from a terminal outcome and, for completed
// sessions, its assessment.
func NewResult(o *screen.Outcome, ra *screen.RiskAssessment, at time.Time) Result {
	return Result{
		SessionID:   o.SessionID,
		RecordedAt:  at,
		State:       o.State,
		AbortReason: o.AbortReason,
		Threshold:   o.Threshold,
		Assessment:  ra,
		Metrics:     o.Metrics,
		Caveats:     o.Quality.Caveats,
	}
}

// DB wraps the results database.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent across calls.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp runs all pending migrations. No pending migrations is not an error.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version; 0 before any migration.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logrus.Debugf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return logrus.IsLevelEnabled(logrus.TraceLevel)
}

// Save inserts or replaces a result.
func (db *DB) Save(ctx context.Context, r Result) error {
	metrics, err := marshalNullable(r.Metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	caveats, err := json.Marshal(r.Caveats)
	if err != nil {
		return fmt.Errorf("encoding caveats: %w", err)
	}

	var (
		score    sql.NullInt64
		category sql.NullString
		factors  sql.NullString
		escalate bool
	)
	if r.Assessment != nil {
		score = sql.NullInt64{Int64: int64(r.Assessment.Score), Valid: true}
		category = sql.NullString{String: string(r.Assessment.Category), Valid: true}
		escalate = r.Assessment.Escalate
		data, err := json.Marshal(r.Assessment)
		if err != nil {
			return fmt.Errorf("encoding assessment: %w", err)
		}
		factors = sql.NullString{String: string(data), Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (
			session_id, recorded_at, state, abort_reason, ear_threshold,
			risk_score, category, escalate, metrics_json, factors_json, caveats_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.RecordedAt.UTC(), string(r.State), r.AbortReason, r.Threshold,
		score, category, escalate, metrics, factors, string(caveats),
	)
	if err != nil {
		return fmt.Errorf("saving result %s: %w", r.SessionID, err)
	}
	return nil
}

// Get returns the result for a session ID.
func (db *DB) Get(ctx context.Context, id string) (Result, error) {
	row := db.QueryRowContext(ctx, selectResults+` WHERE session_id = ?`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns up to limit results, newest first. A non-positive limit returns all.
func (db *DB) List(ctx context.Context, limit int) ([]Result, error) {
	query := selectResults + ` ORDER BY recorded_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectResults = `
	SELECT session_id, recorded_at, state, abort_reason, ear_threshold,
	       metrics_json, factors_json, caveats_json
	FROM results`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(s scanner) (Result, error) {
	var (
		r                         Result
		state                     string
		metrics, factors, caveats sql.NullString
	)
	if err := s.Scan(&r.SessionID, &r.RecordedAt, &state, &r.AbortReason, &r.Threshold,
		&metrics, &factors, &caveats); err != nil {
		return Result{}, err
	}
	r.State = screen.PhaseKind(state)
	if metrics.Valid && metrics.String != "null" {
		r.Metrics = &screen.SessionMetrics{}
		if err := json.Unmarshal([]byte(metrics.String), r.Metrics); err != nil {
			return Result{}, fmt.Errorf("decoding metrics of %s: %w", r.SessionID, err)
		}
	}
	if factors.Valid {
		r.Assessment = &screen.RiskAssessment{}
		if err := json.Unmarshal([]byte(factors.String), r.Assessment); err != nil {
			return Result{}, fmt.Errorf("decoding assessment of %s: %w", r.SessionID, err)
		}
	}
	if caveats.Valid {
		if err := json.Unmarshal([]byte(caveats.String), &r.Caveats); err != nil {
			return Result{}, fmt.Errorf("decoding caveats of %s: %w", r.SessionID, err)
		}
	}
	return r, nil
}

func marshalNullable(v *screen.SessionMetrics) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
