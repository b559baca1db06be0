package history_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"gardenpipe/internal/history"
	"gardenpipe/internal/testsupport"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestBeginAndFinishRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	c := &clock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	store := testsupport.MustOpenHistory(t, cfg, history.WithClock(c.Now))
	ctx := context.Background()

	run, err := store.Begin(ctx, "sess-1", history.ModeBatch, true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if run.Status != history.StatusRunning || run.ID == 0 {
		t.Fatalf("run = %+v", run)
	}

	c.now = c.now.Add(90 * time.Second)
	run.FilesProcessed = 3
	run.FilesSuccessful = 2
	run.FilesFailed = 1
	run.ContentGenerated = 2
	run.Errors = []history.ErrorRecord{{Type: "classification_error", File: "a.txt", Message: "boom", Timestamp: c.now}}
	if err := store.Finish(ctx, run); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Status != history.StatusSucceeded || !got.DryRun || got.Mode != history.ModeBatch {
		t.Fatalf("got = %+v", got)
	}
	if got.Duration() != 90*time.Second {
		t.Fatalf("duration = %v", got.Duration())
	}
	if len(got.Errors) != 1 || got.Errors[0].Type != "classification_error" {
		t.Fatalf("errors = %+v", got.Errors)
	}
	if got.FilesFailed != 1 || got.ContentGenerated != 2 {
		t.Fatalf("counters = %+v", got)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	run, err := store.Get(context.Background(), "nope")
	if err != nil || run != nil {
		t.Fatalf("got %v, %v", run, err)
	}
}

func TestBeginRejectsDuplicateSession(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.Begin(ctx, "dup", history.ModeBatch, false); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := store.Begin(ctx, "dup", history.ModeBatch, false); err == nil {
		t.Fatal("expected unique constraint failure")
	}
	if _, err := store.Begin(ctx, "", history.ModeBatch, false); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	err := store.Finish(context.Background(), &history.Run{SessionID: "ghost"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestListNewestFirstAndStats(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t), history.WithClock(c.Now))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		run, err := store.Begin(ctx, id, history.ModeIntegrated, false)
		if err != nil {
			t.Fatalf("Begin %s: %v", id, err)
		}
		if id == "b" {
			run.Status = history.StatusFailed
			run.ErrorMessage = "deploy failed"
		}
		if err := store.Finish(ctx, run); err != nil {
			t.Fatalf("Finish %s: %v", id, err)
		}
		c.now = c.now.Add(time.Hour)
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].SessionID != "c" || runs[1].SessionID != "b" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[1].ErrorMessage != "deploy failed" {
		t.Fatalf("error message = %q", runs[1].ErrorMessage)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[history.StatusSucceeded] != 2 || stats[history.StatusFailed] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestMarkInterrupted(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.Begin(ctx, "stale", history.ModeBatch, false); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	run, _ := store.Get(ctx, "stale")
	if run.Status != history.StatusInterrupted || run.FinishedAt == nil {
		t.Fatalf("run = %+v", run)
	}
}

func TestArticlesAndPrune(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t), history.WithClock(c.Now))
	ctx := context.Background()

	old, _ := store.Begin(ctx, "old", history.ModeIntegrated, false)
	if err := store.RecordArticle(ctx, history.Article{SessionID: "old", SourcePath: "in.md", OutputPath: "src/content/ideas/x.md", Category: "ideas", Title: "X"}); err != nil {
		t.Fatalf("RecordArticle: %v", err)
	}
	_ = store.Finish(ctx, old)

	c.now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	current, _ := store.Begin(ctx, "current", history.ModeIntegrated, false)
	_ = store.Finish(ctx, current)

	if seen, err := store.SourceProcessed(ctx, "in.md"); err != nil || !seen {
		t.Fatalf("SourceProcessed(in.md) = %v, %v", seen, err)
	}
	if seen, _ := store.SourceProcessed(ctx, "other.md"); seen {
		t.Fatal("other.md was never processed")
	}

	articles, err := store.Articles(ctx, "old")
	if err != nil || len(articles) != 1 || articles[0].Title != "X" {
		t.Fatalf("articles = %+v, %v", articles, err)
	}

	removed, err := store.Prune(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || removed != 1 {
		t.Fatalf("Prune = %d, %v", removed, err)
	}
	if run, _ := store.Get(ctx, "old"); run != nil {
		t.Fatal("old run should be pruned")
	}
	if articles, _ := store.Articles(ctx, "old"); len(articles) != 0 {
		t.Fatal("articles should cascade with their run")
	}
	if seen, _ := store.SourceProcessed(ctx, "in.md"); seen {
		t.Fatal("pruned articles should not count as processed")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", cfg.HistoryPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(cfg); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		t.Fatalf("ledger should remain on disk: %v", err)
	}
}
