package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonathon-love/silky/internal/model"

	_ "modernc.org/sqlite"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    manager_id  TEXT NOT NULL,
    request_id  INTEGER NOT NULL,
    dataset_id  TEXT,
    analysis_id INTEGER NOT NULL,
    name        TEXT NOT NULL,
    perform     TEXT NOT NULL,
    status      TEXT NOT NULL,
    complete    INTEGER NOT NULL,
    revision    INTEGER NOT NULL,
    results     BLOB,
    error       TEXT,
    received_at DATETIME NOT NULL
)`

const createResultsIndex = `
CREATE INDEX IF NOT EXISTS results_request ON results (manager_id, request_id)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS engine_events (
    id          TEXT PRIMARY KEY,
    manager_id  TEXT NOT NULL,
    type        TEXT NOT NULL,
    exit_code   INTEGER NOT NULL,
    reason      TEXT,
    at          DATETIME NOT NULL
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createResultsTable, createResultsIndex, createEventsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordResult inserts a result and sets r.ID to the new row id.
func (s *SQLiteStore) RecordResult(ctx context.Context, r *model.ResultRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (
			manager_id, request_id, dataset_id, analysis_id, name, perform,
			status, complete, revision, results, error, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ManagerID, int64(r.RequestID), r.DatasetID, r.AnalysisID, r.Name, r.Perform,
		r.Status, r.Complete, r.Revision, r.Results, r.Error, r.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}
	r.ID = id
	return nil
}

// ListResults returns every result recorded for one request, oldest first.
func (s *SQLiteStore) ListResults(ctx context.Context, managerID string, requestID uint64) ([]*model.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manager_id, request_id, dataset_id, analysis_id, name, perform,
			status, complete, revision, results, error, received_at
		FROM results WHERE manager_id = ? AND request_id = ? ORDER BY id`,
		managerID, int64(requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*model.ResultRecord
	for rows.Next() {
		r := &model.ResultRecord{}
		var reqID int64
		var datasetID, errMsg sql.NullString
		if err := rows.Scan(
			&r.ID, &r.ManagerID, &reqID, &datasetID, &r.AnalysisID, &r.Name, &r.Perform,
			&r.Status, &r.Complete, &r.Revision, &r.Results, &errMsg, &r.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.RequestID = uint64(reqID)
		r.DatasetID = datasetID.String
		r.Error = errMsg.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// RecordEvent inserts an engine lifecycle event.
func (s *SQLiteStore) RecordEvent(ctx context.Context, e *model.EngineEventRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_events (id, manager_id, type, exit_code, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ManagerID, e.Type, e.ExitCode, e.Reason, e.At,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves an engine event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.EngineEventRecord, error) {
	e := &model.EngineEventRecord{}
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, manager_id, type, exit_code, reason, at
		FROM engine_events WHERE id = ?`, id,
	).Scan(&e.ID, &e.ManagerID, &e.Type, &e.ExitCode, &reason, &e.At)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	e.Reason = reason.String
	return e, nil
}

// ListEvents returns a page of engine events, newest first, along with the
// total count of all events.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit, offset int) ([]*model.EngineEventRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_events").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, manager_id, type, exit_code, reason, at
		FROM engine_events ORDER BY at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.EngineEventRecord
	for rows.Next() {
		e := &model.EngineEventRecord{}
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.ManagerID, &e.Type, &e.ExitCode, &reason, &e.At); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		e.Reason = reason.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}

	return events, total, nil
}

// GetResultStats returns aggregate counts over all recorded results and events.
func (s *SQLiteStore) GetResultStats(ctx context.Context) (*ResultStats, error) {
	stats := &ResultStats{CountByStatus: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(complete), 0) FROM results",
	).Scan(&stats.Total, &stats.Complete); err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM results GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM engine_events WHERE type = ?", model.EventTerminated,
	).Scan(&stats.Terminations); err != nil {
		return nil, fmt.Errorf("count terminations: %w", err)
	}

	return stats, nil
}
