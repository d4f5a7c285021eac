package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates the archive at path, creating its parent directory,
// and applies the embedded migrations.
func Open(ctx context.Context, path string) (*SqlStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open store: path is required")
	}
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return openDSN(ctx, dsn)
}

// OpenMemory opens an in-memory archive for tests.
func OpenMemory(ctx context.Context) (*SqlStore, error) {
	return openDSN(ctx, "file::memory:?_pragma=foreign_keys(1)")
}

func openDSN(ctx context.Context, dsn string) (*SqlStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SqlStore{db: db}, nil
}

func (s *SqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SqlStore) SaveRun(ctx context.Context, run *Run) error {
	if err := validate(run); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var report sql.NullString
	if len(run.Report) > 0 {
		report = sql.NullString{String: string(run.Report), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(id, target, doc_path, status, reason, overall_score, digest, report_json, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.DocPath, string(run.Status), run.Reason, run.OverallScore,
		run.Digest, report, toMillis(run.StartedAt), toMillis(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM verdicts WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("clear verdicts: %w", err)
	}
	for i, v := range run.Verdicts {
		ops, err := json.Marshal(v.Opinions)
		if err != nil {
			return fmt.Errorf("encode opinions for %s: %w", v.DimensionID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO verdicts(run_id, position, dimension_id, dimension_name, final_score, dissent, remediation, opinions_json)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, v.DimensionID, v.DimensionName, v.FinalScore, v.Dissent, v.Remediation, string(ops))
		if err != nil {
			return fmt.Errorf("insert verdict %s: %w", v.DimensionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

const runColumns = `id, target, doc_path, status, reason, overall_score, digest, report_json, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var status string
	var report sql.NullString
	var started, finished int64
	if err := row.Scan(&r.ID, &r.Target, &r.DocPath, &status, &r.Reason, &r.OverallScore,
		&r.Digest, &report, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	if report.Valid {
		r.Report = json.RawMessage(report.String)
	}
	r.StartedAt = fromMillis(started)
	r.FinishedAt = fromMillis(finished)
	return &r, nil
}

func (s *SqlStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT dimension_id, dimension_name, final_score, dissent, remediation, opinions_json
		 FROM verdicts WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v Verdict
		var ops string
		if err := rows.Scan(&v.DimensionID, &v.DimensionName, &v.FinalScore, &v.Dissent, &v.Remediation, &ops); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		if err := json.Unmarshal([]byte(ops), &v.Opinions); err != nil {
			return nil, fmt.Errorf("decode opinions for %s: %w", v.DimensionID, err)
		}
		run.Verdicts = append(run.Verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	return run, nil
}

func (s *SqlStore) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Target != "" {
		where = append(where, "target = ?")
		args = append(args, f.Target)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
