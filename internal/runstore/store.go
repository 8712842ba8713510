// Package runstore persists completed pipeline runs to SQLite so that
// reports can be re-rendered and audited after the fact.
package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/inspectforge/ddrgen/internal/ddr"
)

var ErrNotFound = errors.New("run not found")

// Store keeps one row per run: identifying fields as columns for listing,
// the full report as a JSON blob for retrieval.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	case_id      TEXT NOT NULL DEFAULT '',
	address      TEXT NOT NULL DEFAULT '',
	overall      TEXT NOT NULL DEFAULT '',
	mode         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	report_json  TEXT NOT NULL,
	markdown     TEXT NOT NULL DEFAULT ''
);
`

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RunSummary is the listing view; the full report stays in the blob.
type RunSummary struct {
	RunID     string    `db:"run_id" json:"run_id"`
	CaseID    string    `db:"case_id" json:"case_id"`
	Address   string    `db:"address" json:"address"`
	Overall   string    `db:"overall" json:"overall"`
	Mode      string    `db:"mode" json:"mode"`
	CreatedAt time.Time `db:"-" json:"created_at"`

	CreatedAtRaw string `db:"created_at" json:"-"`
}

// Save persists a run. Saving the same run ID twice overwrites the earlier
// row, which makes re-runs idempotent.
func (s *Store) Save(runID string, report *ddr.DDRReport, markdown string) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO runs
		(run_id, case_id, address, overall, mode, created_at, report_json, markdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, report.CaseID, report.Property.Address, string(report.Overall.Level),
		string(report.Metadata.Mode), time.Now().UTC().Format(time.RFC3339), string(blob), markdown)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Get returns the stored report and rendered markdown for a run.
func (s *Store) Get(runID string) (*ddr.DDRReport, string, error) {
	var row struct {
		ReportJSON string `db:"report_json"`
		Markdown   string `db:"markdown"`
	}
	err := s.db.Get(&row, `SELECT report_json, markdown FROM runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get run: %w", err)
	}
	var report ddr.DDRReport
	if err := json.Unmarshal([]byte(row.ReportJSON), &report); err != nil {
		return nil, "", fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, row.Markdown, nil
}

// List returns run summaries, newest first.
func (s *Store) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []RunSummary
	err := s.db.Select(&rows, `SELECT run_id, case_id, address, overall, mode, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range rows {
		if t, err := time.Parse(time.RFC3339, rows[i].CreatedAtRaw); err == nil {
			rows[i].CreatedAt = t
		}
	}
	return rows, nil
}
