package history

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

	"gardenpipe/internal/config"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates or connects to the ledger at cfg.HistoryPath().
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	return OpenPath(cfg.HistoryPath(), opts...)
}

// OpenPath opens the ledger at an explicit location.
func OpenPath(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Begin records a new running row for sessionID.
func (s *Store) Begin(ctx context.Context, sessionID string, mode Mode, dryRun bool) (*Run, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	started := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (session_id, mode, status, dry_run, started_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(mode), string(StatusRunning), boolToInt(dryRun), started.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Run{ID: id, SessionID: sessionID, Mode: mode, Status: StatusRunning, DryRun: dryRun, StartedAt: started}, nil
}

// Finish stores the final counters and status of run.
func (s *Store) Finish(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	finished := s.now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	run.FinishedAt = &finished
	if run.Status == "" || run.Status == StatusRunning {
		run.Status = StatusSucceeded
	}
	errorsJSON, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs
         SET status = ?, finished_at = ?, files_processed = ?, files_successful = ?,
             files_failed = ?, content_generated = ?, git_commits = ?, errors_json = ?, error_message = ?
         WHERE session_id = ?`,
		string(run.Status),
		finished.Format(timeLayout),
		run.FilesProcessed,
		run.FilesSuccessful,
		run.FilesFailed,
		run.ContentGenerated,
		run.GitCommits,
		errorsJSON,
		nullableString(run.ErrorMessage),
		run.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", run.SessionID, sql.ErrNoRows)
	}
	return nil
}

// MarkInterrupted closes runs left in the running state by a process that
// exited without finishing them.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE status = ?`,
		string(StatusInterrupted), s.now().UTC().Format(timeLayout), "process exited before the run finished", string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns the run for sessionID, or nil when none exists.
func (s *Store) Get(ctx context.Context, sessionID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE session_id = ?`, sessionID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats counts runs by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// RecordArticle links a written article to its run.
func (s *Store) RecordArticle(ctx context.Context, a Article) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (session_id, source_path, output_path, category, title, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.SourcePath, a.OutputPath, nullableString(a.Category), nullableString(a.Title),
		created.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Articles returns the articles written by sessionID in insertion order.
func (s *Store) Articles(ctx context.Context, sessionID string) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, source_path, output_path, category, title, created_at FROM articles WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var (
			a          Article
			category   sql.NullString
			title      sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&a.SessionID, &a.SourcePath, &a.OutputPath, &category, &title, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Category = category.String
		a.Title = title.String
		if created, err := parseTimeString(createdRaw); err == nil {
			a.CreatedAt = created
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// SourceProcessed reports whether any run already wrote an article from
// sourcePath.
func (s *Store) SourceProcessed(ctx context.Context, sourcePath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE source_path = ?`, sourcePath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup source: %w", err)
	}
	return n > 0, nil
}

// Prune deletes finished runs that started before cutoff, together with
// their articles.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE status != ? AND started_at < ?`,
		string(StatusRunning), cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func encodeErrors(records []ErrorRecord) (any, error) {
	if len(records) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal errors: %w", err)
	}
	return string(data), nil
}
