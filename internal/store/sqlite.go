package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/rcvimpute/internal/model"
)

const sqliteFile = "results.db"

// sqliteTime keeps a fixed width so text order is time order
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	target_city TEXT NOT NULL,
	donor_cities TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS imputations (
	run_id TEXT NOT NULL,
	precinct TEXT NOT NULL,
	first_choice TEXT NOT NULL,
	second_choice TEXT NOT NULL,
	third_choice TEXT NOT NULL,
	count REAL NOT NULL,
	PRIMARY KEY (run_id, precinct, first_choice, second_choice, third_choice)
)`, `
CREATE TABLE IF NOT EXISTS matches (
	run_id TEXT NOT NULL,
	precinct TEXT NOT NULL,
	position INTEGER NOT NULL,
	city TEXT NOT NULL,
	donor TEXT NOT NULL,
	similarity REAL NOT NULL,
	PRIMARY KEY (run_id, precinct, position)
)`, `
CREATE TABLE IF NOT EXISTS warnings (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	precinct TEXT NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
)`, `
CREATE TABLE IF NOT EXISTS excluded (
	run_id TEXT NOT NULL,
	precinct TEXT NOT NULL,
	PRIMARY KEY (run_id, precinct)
)`,
}

// SQLiteStore keeps every run in one database file. Read returns the most
// recently started run.
type SQLiteStore struct {
	path string
}

// NewSQLiteStore creates a store backed by the database at path
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return db, nil
}

// Write inserts the run in a single transaction
func (s *SQLiteStore) Write(ctx context.Context, run *model.RunResult) (err error) {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cities, err := json.Marshal(run.DonorCities)
	if err != nil {
		return fmt.Errorf("encode donor cities: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, target_city, donor_cities, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.TargetCity, string(cities),
		run.StartedAt.UTC().Format(sqliteTime), run.FinishedAt.UTC().Format(sqliteTime),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err = insertImputations(ctx, tx, run); err != nil {
		return err
	}
	if err = insertMatches(ctx, tx, run); err != nil {
		return err
	}

	for i, w := range run.Warnings {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO warnings (run_id, seq, precinct, kind, message) VALUES (?, ?, ?, ?, ?)`,
			run.RunID, i, string(w.Precinct), string(w.Kind), w.Message,
		); err != nil {
			return fmt.Errorf("insert warning: %w", err)
		}
	}
	for _, id := range run.Excluded {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO excluded (run_id, precinct) VALUES (?, ?)`, run.RunID, string(id),
		); err != nil {
			return fmt.Errorf("insert excluded: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertImputations(ctx context.Context, tx *sql.Tx, run *model.RunResult) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO imputations (run_id, precinct, first_choice, second_choice, third_choice, count) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare imputations: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range run.Precincts() {
		table := run.Imputations[id]
		for _, sched := range sortedSchedules(table) {
			if _, err := stmt.ExecContext(ctx, run.RunID, string(id),
				string(sched[0]), string(sched[1]), string(sched[2]), table[sched]); err != nil {
				return fmt.Errorf("insert imputation %s: %w", id, err)
			}
		}
	}
	return nil
}

func insertMatches(ctx context.Context, tx *sql.Tx, run *model.RunResult) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (run_id, precinct, position, city, donor, similarity) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare matches: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range matchPrecincts(run) {
		for rank, m := range run.Matches[id] {
			if _, err := stmt.ExecContext(ctx, run.RunID, string(id), rank+1,
				string(m.Donor.City), string(m.Donor.ID), m.Similarity); err != nil {
				return fmt.Errorf("insert match %s: %w", id, err)
			}
		}
	}
	return nil
}

// Read loads the most recent run
func (s *SQLiteStore) Read(ctx context.Context) (*model.RunResult, error) {
	if !fileExists(s.path) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNoRun)
	}
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var runID, target, cities, started, finished string
	err = db.QueryRowContext(ctx,
		`SELECT run_id, target_city, donor_cities, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&runID, &target, &cities, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNoRun)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	var donors []model.DonorCity
	if err := json.Unmarshal([]byte(cities), &donors); err != nil {
		return nil, fmt.Errorf("decode donor cities: %w", err)
	}
	run := model.NewRunResult(runID, target, donors)
	if run.StartedAt, err = time.Parse(sqliteTime, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(sqliteTime, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	if err := readImputations(ctx, db, run); err != nil {
		return nil, err
	}
	if err := readMatches(ctx, db, run); err != nil {
		return nil, err
	}
	if err := readWarnings(ctx, db, run); err != nil {
		return nil, err
	}
	if err := readExcluded(ctx, db, run); err != nil {
		return nil, err
	}
	return run, nil
}

func readImputations(ctx context.Context, db *sql.DB, run *model.RunResult) error {
	rows, err := db.QueryContext(ctx,
		`SELECT precinct, first_choice, second_choice, third_choice, count FROM imputations WHERE run_id = ?`, run.RunID)
	if err != nil {
		return fmt.Errorf("query imputations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var precinct, first, second, third string
		var count float64
		if err := rows.Scan(&precinct, &first, &second, &third, &count); err != nil {
			return fmt.Errorf("scan imputation: %w", err)
		}
		id := model.PrecinctID(precinct)
		table, ok := run.Imputations[id]
		if !ok {
			table = make(model.ImputedFrequencyTable)
			run.Imputations[id] = table
		}
		table[model.NewRaceSchedule(model.Race(first), model.Race(second), model.Race(third))] = count
	}
	return rows.Err()
}

func readMatches(ctx context.Context, db *sql.DB, run *model.RunResult) error {
	rows, err := db.QueryContext(ctx,
		`SELECT precinct, city, donor, similarity FROM matches WHERE run_id = ? ORDER BY precinct, position`, run.RunID)
	if err != nil {
		return fmt.Errorf("query matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var precinct, city, donor string
		var sim float64
		if err := rows.Scan(&precinct, &city, &donor, &sim); err != nil {
			return fmt.Errorf("scan match: %w", err)
		}
		id := model.PrecinctID(precinct)
		run.Matches[id] = append(run.Matches[id], model.Match{
			Donor:      model.DonorRef{City: model.DonorCity(city), ID: model.PrecinctID(donor)},
			Similarity: sim,
		})
	}
	return rows.Err()
}

func readWarnings(ctx context.Context, db *sql.DB, run *model.RunResult) error {
	rows, err := db.QueryContext(ctx,
		`SELECT precinct, kind, message FROM warnings WHERE run_id = ? ORDER BY seq`, run.RunID)
	if err != nil {
		return fmt.Errorf("query warnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var w model.Warning
		var precinct, kind string
		if err := rows.Scan(&precinct, &kind, &w.Message); err != nil {
			return fmt.Errorf("scan warning: %w", err)
		}
		w.Precinct = model.PrecinctID(precinct)
		w.Kind = model.WarningKind(kind)
		run.Warnings = append(run.Warnings, w)
	}
	return rows.Err()
}

func readExcluded(ctx context.Context, db *sql.DB, run *model.RunResult) error {
	rows, err := db.QueryContext(ctx,
		`SELECT precinct FROM excluded WHERE run_id = ? ORDER BY precinct`, run.RunID)
	if err != nil {
		return fmt.Errorf("query excluded: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var precinct string
		if err := rows.Scan(&precinct); err != nil {
			return fmt.Errorf("scan excluded: %w", err)
		}
		run.Excluded = append(run.Excluded, model.PrecinctID(precinct))
	}
	return rows.Err()
}
