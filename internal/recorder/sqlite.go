package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"

	"perpscan/pkg/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers can inspect history while a run is recording.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			screened   INTEGER NOT NULL,
			matched    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS verdicts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL REFERENCES runs(id),
			symbol     TEXT NOT NULL,
			tf_1h      INTEGER NOT NULL,
			tf_15m     INTEGER NOT NULL,
			tf_5m      INTEGER NOT NULL,
			passed     INTEGER NOT NULL,
			data_error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_symbol ON verdicts(symbol)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun writes the run header and one row per verdict in a single
// transaction.
func (r *SQLiteRecorder) RecordRun(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO runs (id, started_at, screened, matched) VALUES (?,?,?,?)`,
		run.ID, run.StartedAt.Unix(), run.Screened, run.Matched); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	for _, v := range run.Verdicts {
		if _, err := tx.Exec(`INSERT INTO verdicts
			(run_id, symbol, tf_1h, tf_15m, tf_5m, passed, data_error)
			VALUES (?,?,?,?,?,?,?)`,
			run.ID, v.Symbol,
			boolInt(v.Matched(model.Timeframe1h)),
			boolInt(v.Matched(model.Timeframe15m)),
			boolInt(v.Matched(model.Timeframe5m)),
			boolInt(v.Passed),
			firstDataError(v),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert verdict %s: %w", v.Symbol, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstDataError(v model.Verdict) string {
	for _, tf := range model.Timeframes {
		if e := v.Timeframes[tf].DataError; e != "" {
			return string(tf) + ": " + e
		}
	}
	return ""
}
