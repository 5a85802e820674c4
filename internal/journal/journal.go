// Package journal records patch runs in a local SQLite database so an
// operator can audit what each run changed.
//
// Every non-dry run stores one row per run, one per patch outcome and one
// per document with the SHA-256 of its content before and after the run.
package journal

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/specpatch/internal/report"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// newRunID is a package-level var to allow deterministic ids in tests.
var newRunID = uuid.NewString

// ─── Types ───────────────────────────────────────────────────────────────────

// Run is a journaled patch run.
type Run struct {
	ID              string `json:"id"`
	StartedAt       string `json:"started_at"`
	FinishedAt      string `json:"finished_at"`
	Sets            string `json:"sets"`
	Success         bool   `json:"success"`
	FullyConsistent bool   `json:"fully_consistent"`
	Applied         int    `json:"applied"`
	Failed          int    `json:"failed"`
}

// Outcome is one journaled patch result.
type Outcome struct {
	Set      string `json:"set"`
	PatchID  string `json:"patch_id"`
	Document string `json:"document"`
	Outcome  string `json:"outcome"`
	OldStart int    `json:"old_start"`
	OldEnd   int    `json:"old_end"`
	NewStart int    `json:"new_start"`
	NewEnd   int    `json:"new_end"`
	Detail   string `json:"detail,omitempty"`
}

// Document is one journaled document result.
type Document struct {
	Path         string `json:"path"`
	Status       string `json:"status"`
	Committed    bool   `json:"committed"`
	BeforeSHA256 string `json:"before_sha256"`
	AfterSHA256  string `json:"after_sha256"`
}

// RunDetail is a run with its outcomes and documents.
type RunDetail struct {
	Run
	Outcomes  []Outcome  `json:"outcomes"`
	Documents []Document `json:"documents"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds journal configuration.
type Config struct {
	DataDir string
}

// ─── Journal ─────────────────────────────────────────────────────────────────

// Journal is the run journal backed by SQLite.
type Journal struct {
	db  *sql.DB
	cfg Config
}

// New creates the data directory if needed, opens SQLite with WAL mode
// and runs migrations.
func New(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "journal.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	j := &Journal{db: db, cfg: cfg}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id               TEXT PRIMARY KEY,
			started_at       TEXT    NOT NULL,
			finished_at      TEXT    NOT NULL,
			sets             TEXT    NOT NULL,
			success          INTEGER NOT NULL,
			fully_consistent INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS outcomes (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq       INTEGER NOT NULL,
			set_label TEXT    NOT NULL,
			patch_id  TEXT    NOT NULL,
			document  TEXT    NOT NULL,
			outcome   TEXT    NOT NULL,
			old_start INTEGER NOT NULL DEFAULT -1,
			old_end   INTEGER NOT NULL DEFAULT -1,
			new_start INTEGER NOT NULL DEFAULT -1,
			new_end   INTEGER NOT NULL DEFAULT -1,
			detail    TEXT
		);

		CREATE TABLE IF NOT EXISTS documents (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			path          TEXT    NOT NULL,
			status        TEXT    NOT NULL,
			committed     INTEGER NOT NULL,
			before_sha256 TEXT    NOT NULL,
			after_sha256  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id, seq);
		CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id);
		CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
	`
	_, err := j.db.Exec(schema)
	return err
}

// ─── Recording ───────────────────────────────────────────────────────────────

// Record stores a finished run and assigns rep.RunID when it is empty.
// Dry runs are not recorded.
func (j *Journal) Record(rep *report.Report) error {
	if rep.DryRun {
		return nil
	}
	if rep.RunID == "" {
		rep.RunID = newRunID()
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, finished_at, sets, success, fully_consistent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rep.RunID, formatTime(rep.StartedAt), formatTime(rep.FinishedAt),
		strings.Join(rep.Sets, ","), boolInt(rep.Success()), boolInt(rep.FullyConsistent),
	)
	if err != nil {
		return fmt.Errorf("journal: insert run: %w", err)
	}

	for i, e := range rep.Entries {
		oldStart, oldEnd, newStart, newEnd := -1, -1, -1, -1
		if e.Diff != nil {
			oldStart, oldEnd = e.Diff.Old.Start, e.Diff.Old.End
			newStart, newEnd = e.Diff.New.Start, e.Diff.New.End
		}
		_, err := tx.Exec(
			`INSERT INTO outcomes (run_id, seq, set_label, patch_id, document, outcome,
			                       old_start, old_end, new_start, new_end, detail)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID, i, e.Set, e.PatchID, e.Document, string(e.Outcome),
			oldStart, oldEnd, newStart, newEnd, nullableString(e.Detail),
		)
		if err != nil {
			return fmt.Errorf("journal: insert outcome %s: %w", e.PatchID, err)
		}
	}

	for _, d := range rep.Documents {
		after := d.Before
		if d.Status == report.StatusCommitted {
			after = d.Content
		}
		_, err := tx.Exec(
			`INSERT INTO documents (run_id, path, status, committed, before_sha256, after_sha256)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rep.RunID, d.Path, string(d.Status), boolInt(d.Status == report.StatusCommitted),
			Checksum(d.Before), Checksum(after),
		)
		if err != nil {
			return fmt.Errorf("journal: insert document %s: %w", d.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	return nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Recent returns the most recent runs, newest first.
func (j *Journal) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := j.db.Query(`
		SELECT r.id, r.started_at, r.finished_at, r.sets, r.success, r.fully_consistent,
		       COALESCE(SUM(CASE WHEN o.outcome = 'applied' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN o.outcome IN ('not-found', 'ambiguous', 'failed') THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN outcomes o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Sets,
			&r.Success, &r.FullyConsistent, &r.Applied, &r.Failed); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns a run with its outcomes and documents.
func (j *Journal) Get(id string) (*RunDetail, error) {
	var d RunDetail
	err := j.db.QueryRow(
		`SELECT id, started_at, finished_at, sets, success, fully_consistent FROM runs WHERE id = ?`, id,
	).Scan(&d.ID, &d.StartedAt, &d.FinishedAt, &d.Sets, &d.Success, &d.FullyConsistent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := j.db.Query(`
		SELECT set_label, patch_id, document, outcome, old_start, old_end, new_start, new_end, COALESCE(detail, '')
		FROM outcomes WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Set, &o.PatchID, &o.Document, &o.Outcome,
			&o.OldStart, &o.OldEnd, &o.NewStart, &o.NewEnd, &o.Detail); err != nil {
			return nil, err
		}
		switch o.Outcome {
		case "applied":
			d.Applied++
		case "not-found", "ambiguous", "failed":
			d.Failed++
		}
		d.Outcomes = append(d.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docRows, err := j.db.Query(`
		SELECT path, status, committed, before_sha256, after_sha256
		FROM documents WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = docRows.Close() }()
	for docRows.Next() {
		var doc Document
		if err := docRows.Scan(&doc.Path, &doc.Status, &doc.Committed, &doc.BeforeSHA256, &doc.AfterSHA256); err != nil {
			return nil, err
		}
		d.Documents = append(d.Documents, doc)
	}
	return &d, docRows.Err()
}

// ─── Formatting ──────────────────────────────────────────────────────────────

// FormatHistory renders recent runs as markdown.
func FormatHistory(runs []Run) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("## Recent patch runs\n\n")
	sb.WriteString("| Run | Started | Sets | Applied | Failed | Result |\n")
	sb.WriteString("|-----|---------|------|---------|--------|--------|\n")
	for _, r := range runs {
		result := "success"
		switch {
		case !r.Success:
			result = "failed"
		case !r.FullyConsistent:
			result = "inconsistent"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %d | %s |\n",
			shortID(r.ID), r.StartedAt, r.Sets, r.Applied, r.Failed, result)
	}
	return sb.String()
}

// FormatRun renders one run with its outcomes and documents as markdown.
func FormatRun(d *RunDetail) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Run %s\n\n", d.ID)
	fmt.Fprintf(&sb, "**Started**: %s\n", d.StartedAt)
	fmt.Fprintf(&sb, "**Sets**: %s\n", d.Sets)
	fmt.Fprintf(&sb, "**Success**: %t (fully consistent: %t)\n\n", d.Success, d.FullyConsistent)

	sb.WriteString("| Patch | Document | Outcome | Old | New |\n")
	sb.WriteString("|-------|----------|---------|-----|-----|\n")
	for _, o := range d.Outcomes {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			o.PatchID, o.Document, o.Outcome, span(o.OldStart, o.OldEnd), span(o.NewStart, o.NewEnd))
	}

	sb.WriteString("\n### Documents\n\n")
	for _, doc := range d.Documents {
		fmt.Fprintf(&sb, "- `%s`: %s (%s → %s)\n", doc.Path, doc.Status, shortSum(doc.BeforeSHA256), shortSum(doc.AfterSHA256))
	}
	return sb.String()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Checksum returns the hex SHA-256 of content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func span(start, end int) string {
	if start < 0 {
		return "-"
	}
	return fmt.Sprintf("%d..%d", start, end)
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
