package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/martinemde/draftloop/agentloop"
	"github.com/martinemde/draftloop/unifiedllm"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one agent run as recorded by SQLiteStore.
type Run struct {
	ID         string
	Query      string
	Iterations int
	Final      bool
	Answer     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SQLiteStore records runs, their chat history and their steps.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at dsn and applies pending
// migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// An in-memory database exists per connection.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Snapshot upserts the run row, appends history messages not yet stored
// and records the iteration's step. Replaying a snapshot is a no-op.
func (s *SQLiteStore) Snapshot(ctx context.Context, snap agentloop.Snapshot) error {
	body, err := json.Marshal(snap.Step)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, query, iterations, final, answer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			iterations = MAX(iterations, excluded.iterations),
			final = MAX(final, excluded.final),
			answer = CASE WHEN excluded.final = 1 THEN excluded.answer ELSE answer END,
			updated_at = excluded.updated_at`,
		snap.RunID, snap.Query, snap.Iteration, snap.Final, snap.Answer, now, now,
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE run_id = ?`, snap.RunID).Scan(&stored); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	for i := stored; i < len(snap.History); i++ {
		m := snap.History[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (run_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			snap.RunID, i, string(m.Role), m.Content,
		); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO steps (run_id, iteration, thought, action, answer, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, iteration) DO UPDATE SET
			thought = excluded.thought,
			action = excluded.action,
			answer = excluded.answer,
			body = excluded.body`,
		snap.RunID, snap.Iteration, snap.Step.Thought, snap.Step.Action, snap.Step.FinalAnswer, string(body),
	); err != nil {
		return fmt.Errorf("upsert step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetRun returns the run row for id or ErrRunNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, iterations, final, answer, created_at, updated_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recently updated runs first. limit <= 0
// returns all of them.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, iterations, final, answer, created_at, updated_at
		FROM runs ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.Query, &r.Iterations, &r.Final, &r.Answer, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadHistory returns the stored chat history of a run in order.
func (s *SQLiteStore) LoadHistory(ctx context.Context, runID string) ([]unifiedllm.Message, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []unifiedllm.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		history = append(history, unifiedllm.Message{Role: unifiedllm.Role(role), Content: content})
	}
	return history, rows.Err()
}

// LoadSteps returns the recorded steps of a run by iteration.
func (s *SQLiteStore) LoadSteps(ctx context.Context, runID string) ([]agentloop.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, body FROM steps WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []agentloop.Step
	for rows.Next() {
		var (
			iteration int
			body      string
		)
		if err := rows.Scan(&iteration, &body); err != nil {
			return nil, err
		}
		var step agentloop.Step
		if err := json.Unmarshal([]byte(body), &step); err != nil {
			return nil, fmt.Errorf("decode step %d: %w", iteration, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
