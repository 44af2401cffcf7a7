package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		export_id TEXT NOT NULL,
		category TEXT NOT NULL,
		sub_category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		user_answer TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_export ON observations(export_id)`,
}

// OpenDB opens the export database at path, creating its directory.
// ":memory:" opens a private in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// Migrate creates the export schema. It is safe to run more than once.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// SQLiteSink stores rows in the observations table.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db, now: time.Now}
}

func (s *SQLiteSink) Name() string {
	return "sqlite"
}

func (s *SQLiteSink) WriteBatch(ctx context.Context, exportID string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations
		(export_id, category, sub_category, description, user_answer, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	createdAt := s.now().UTC().Format(time.RFC3339)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, exportID, r.Category, r.SubCategory, r.Description, r.Answer, createdAt); err != nil {
			return fmt.Errorf("inserting observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// List returns the rows of one export in insertion order.
func (s *SQLiteSink) List(ctx context.Context, exportID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, sub_category, description, user_answer
		FROM observations WHERE export_id = ? ORDER BY id`, exportID)
	if err != nil {
		return nil, fmt.Errorf("listing observations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Category, &r.SubCategory, &r.Description, &r.Answer); err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Exports lists export IDs, newest first.
func (s *SQLiteSink) Exports(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT export_id FROM observations
		GROUP BY export_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing exports: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning export id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
