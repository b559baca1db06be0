package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gardenpipe/internal/config"
	"gardenpipe/internal/factcheck"
	"gardenpipe/internal/garden"
	"gardenpipe/internal/gitops"
	"gardenpipe/internal/history"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/testsupport"
	"gardenpipe/internal/visual"
)

const gardenReply = `{"category":"ideas","title":"Go concurrency","description":"errgroup のメモ","tags":["go","errgroup","設計"],"confidence":0.9,"markdown_content":"## 構想\n\nerrgroup は Go 1.20 で導入された。"}`

type gardenModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (m *gardenModel) Complete(context.Context, llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.reply, m.err
}
func (m *gardenModel) Available() bool { return true }
func (m *gardenModel) Model() string   { return "stub" }

type stubEnhancer struct {
	calls []string
}

func (s *stubEnhancer) Enhance(_ context.Context, _, title, _, slug string) visual.Enhancement {
	s.calls = append(s.calls, title+"|"+slug)
	return visual.Enhancement{
		ThumbnailPath: "images/thumbnails/" + slug + ".png",
		Diagrams: []visual.Diagram{{
			Type:  "flowchart",
			Title: "流れ",
			Code:  "flowchart TD\n    A[入力] --> B[出力]",
		}},
	}
}

type stubChecker struct {
	calls int
}

func (s *stubChecker) CheckArticle(context.Context, string, string) factcheck.ArticleFactCheck {
	s.calls++
	return factcheck.ArticleFactCheck{
		TotalClaims:     2,
		VerifiedCount:   1,
		UnverifiedCount: 1,
		OverallAccuracy: 0.5,
		Citations:       []factcheck.Citation{{Title: "Go blog", URL: "https://go.dev/blog", Snippet: "Verification for: errgroup"}},
	}
}

type stubCommitter struct {
	extras  []string
	commit  gitops.CommitResult
	pushErr error
	pushes  int
}

func (s *stubCommitter) CommitChanges(_ context.Context, _ []string, extra string) gitops.CommitResult {
	s.extras = append(s.extras, extra)
	return s.commit
}

func (s *stubCommitter) PushToRemote(context.Context, string) error {
	s.pushes++
	return s.pushErr
}

type stubBuilder struct {
	err    error
	builds int
}

func (s *stubBuilder) Build(context.Context) error {
	s.builds++
	return s.err
}

type integratedFixture struct {
	cfg       *config.Config
	model     *gardenModel
	enhancer  *stubEnhancer
	checker   *stubChecker
	committer *stubCommitter
	builder   *stubBuilder
	notifier  *recordingNotifier
	store     *history.Store
}

var fixedNow = time.Date(2026, 1, 5, 8, 4, 2, 0, time.UTC)

func newIntegratedFixture(t *testing.T) *integratedFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())
	cfg.Pipeline.EnableSiteBuild = true
	return &integratedFixture{
		cfg:       cfg,
		model:     &gardenModel{reply: gardenReply},
		enhancer:  &stubEnhancer{},
		checker:   &stubChecker{},
		committer: &stubCommitter{commit: gitops.CommitResult{Success: true, CommitHash: "abc123"}},
		builder:   &stubBuilder{},
		notifier:  &recordingNotifier{},
		store:     testsupport.MustOpenHistory(t, cfg),
	}
}

func (f *integratedFixture) pipeline(opts ...Option) *Integrated {
	clock := func() time.Time { return fixedNow }
	steps := Steps{
		Articles:  garden.New(f.model, logging.NewNop(), garden.WithClock(clock)),
		Visual:    f.enhancer,
		FactCheck: f.checker,
		Git:       f.committer,
		Site:      f.builder,
	}
	base := []Option{WithHistory(f.store), WithNotifier(f.notifier), WithClock(clock), WithSessionID("sess-int")}
	return NewIntegrated(f.cfg, steps, logging.NewNop(), append(base, opts...)...)
}

func (f *integratedFixture) note(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.cfg.Paths.InputText, name)
	testsupport.WriteText(t, path, body)
	return path
}

func TestProcessFileRunsEveryStep(t *testing.T) {
	f := newIntegratedFixture(t)
	input := f.note(t, "idea.txt", "errgroup について考えた")
	f.builder.err = errors.New("npm missing")

	result := f.pipeline().ProcessFile(context.Background(), input)
	if !result.Success || result.ErrorMessage != "" {
		t.Fatalf("result = %+v", result)
	}
	wantOutput := filepath.Join(f.cfg.ContentDir(), "ideas", "go-concurrency.md")
	if result.OutputFile != wantOutput {
		t.Fatalf("output = %s, want %s", result.OutputFile, wantOutput)
	}
	if result.Category != "ideas" || result.Title != "Go concurrency" {
		t.Fatalf("category/title = %s / %s", result.Category, result.Title)
	}
	if !result.ThumbnailGenerated || result.MermaidCount != 1 || result.FactCheckAccuracy != 0.5 {
		t.Fatalf("enhancement fields = %+v", result)
	}
	if !result.GitCommitted || !result.GitPushed {
		t.Fatalf("git fields = %+v", result)
	}
	if len(f.enhancer.calls) != 1 || f.enhancer.calls[0] != "Go concurrency|go-concurrency" {
		t.Fatalf("enhancer calls = %v", f.enhancer.calls)
	}
	if f.builder.builds != 1 {
		t.Fatalf("builds = %d", f.builder.builds)
	}
	if len(f.committer.extras) != 1 || f.committer.extras[0] != "Add new ideas article: Go concurrency" {
		t.Fatalf("commit context = %v", f.committer.extras)
	}

	data, err := os.ReadFile(result.OutputFile)
	if err != nil {
		t.Fatalf("read article: %v", err)
	}
	doc := string(data)
	for _, want := range []string{
		`thumbnail: "images/thumbnails/go-concurrency.png"`,
		"## " + visual.DiagramSection,
		"```mermaid\nflowchart TD",
		`researchCitations: [{"title":"Go blog","url":"https://go.dev/blog"`,
		"errgroup は Go 1.20 で導入された。",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("article missing %q:\n%s", want, doc)
		}
	}
	if f.notifier.count(notifications.EventArticlePublished) != 1 {
		t.Fatalf("events = %v", f.notifier.events)
	}
}

func TestProcessFileHonorsToggles(t *testing.T) {
	f := newIntegratedFixture(t)
	f.cfg.Pipeline.EnableThumbnails = false
	f.cfg.Pipeline.EnableMermaid = false
	f.cfg.Pipeline.EnableFactCheck = false
	f.cfg.Pipeline.EnableSiteBuild = false
	f.cfg.Pipeline.EnableGitCommit = false
	input := f.note(t, "idea.txt", "メモ")

	result := f.pipeline().ProcessFile(context.Background(), input)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if len(f.enhancer.calls) != 0 || f.checker.calls != 0 || f.builder.builds != 0 || len(f.committer.extras) != 0 {
		t.Fatal("disabled steps must not run")
	}
	if result.FactCheckAccuracy != 1.0 || result.GitCommitted || result.ThumbnailGenerated {
		t.Fatalf("result = %+v", result)
	}
}

func TestProcessFileCommitWithoutPush(t *testing.T) {
	f := newIntegratedFixture(t)
	f.cfg.Pipeline.EnableGitPush = false
	input := f.note(t, "idea.txt", "メモ")

	result := f.pipeline().ProcessFile(context.Background(), input)
	if !result.GitCommitted || result.GitPushed || f.committer.pushes != 0 {
		t.Fatalf("result = %+v, pushes = %d", result, f.committer.pushes)
	}
}

func TestProcessFilePushFailureKeepsSuccess(t *testing.T) {
	f := newIntegratedFixture(t)
	f.committer.pushErr = errors.New("rejected")
	input := f.note(t, "idea.txt", "メモ")

	result := f.pipeline().ProcessFile(context.Background(), input)
	if !result.Success || !result.GitCommitted || result.GitPushed {
		t.Fatalf("result = %+v", result)
	}
}

func TestProcessFileNoChangesSkipsPush(t *testing.T) {
	f := newIntegratedFixture(t)
	f.committer.commit = gitops.CommitResult{ErrorMessage: "No changes to commit"}
	input := f.note(t, "idea.txt", "メモ")

	result := f.pipeline().ProcessFile(context.Background(), input)
	if !result.Success || result.GitCommitted || f.committer.pushes != 0 {
		t.Fatalf("result = %+v, pushes = %d", result, f.committer.pushes)
	}
}

func TestProcessFileClassificationFailure(t *testing.T) {
	f := newIntegratedFixture(t)
	f.model.reply = `{"category":"diary","title":"t","description":"d","tags":["a"],"markdown_content":"x"}`
	input := f.note(t, "idea.txt", "メモ")

	result := f.pipeline().ProcessFile(context.Background(), input)
	if result.Success || result.OutputFile != "" {
		t.Fatalf("result = %+v", result)
	}
	if !strings.HasPrefix(result.ErrorMessage, "pipeline failed: ") {
		t.Fatalf("error message = %q", result.ErrorMessage)
	}
	if f.notifier.count(notifications.EventError) != 1 {
		t.Fatalf("events = %v", f.notifier.events)
	}
}

func TestProcessFileDryRunWritesNothing(t *testing.T) {
	f := newIntegratedFixture(t)
	input := f.note(t, "idea.txt", "メモ")

	result := f.pipeline(WithDryRun(true)).ProcessFile(context.Background(), input)
	if !result.Success || result.OutputFile == "" {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(result.OutputFile); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote %s", result.OutputFile)
	}
	if len(f.enhancer.calls) != 0 || len(f.committer.extras) != 0 {
		t.Fatal("dry run must stop after classification")
	}
}

func TestRunDirectoryRecordsHistoryAndSkipsExisting(t *testing.T) {
	f := newIntegratedFixture(t)
	f.note(t, "a.txt", "一つ目")
	f.note(t, "b.txt", "二つ目")
	f.note(t, "c.md", "対象外")
	ctx := context.Background()

	summary, err := f.pipeline().Run(ctx, f.cfg.Paths.InputText, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 2 || summary.Success != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.HasSuffix(summary.Results[0].InputFile, "a.txt") {
		t.Fatalf("first result = %s", summary.Results[0].InputFile)
	}
	run, err := f.store.Get(ctx, "sess-int")
	if err != nil || run == nil {
		t.Fatalf("Get = %+v, %v", run, err)
	}
	if run.Mode != history.ModeIntegrated || run.Status != history.StatusSucceeded || run.ContentGenerated != 2 || run.GitCommits != 2 {
		t.Fatalf("history run = %+v", run)
	}
	articles, _ := f.store.Articles(ctx, "sess-int")
	if len(articles) != 2 {
		t.Fatalf("articles = %+v", articles)
	}

	calls := f.model.calls
	again, err := f.pipeline(WithSessionID("sess-int-2")).Run(ctx, f.cfg.Paths.InputText, "*.txt")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Skipped != 2 || again.Success != 0 {
		t.Fatalf("second summary = %+v", again)
	}
	if f.model.calls != calls {
		t.Fatal("skipped notes must not reach the model")
	}
}

func TestRunRecordsFailures(t *testing.T) {
	f := newIntegratedFixture(t)
	f.model.err = services.Wrap(services.ErrTransient, "llm", "complete", "overloaded", nil)
	input := f.note(t, "a.txt", "メモ")

	summary, err := f.pipeline().Run(context.Background(), input, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	run, _ := f.store.Get(context.Background(), "sess-int")
	if run == nil || run.Status != history.StatusFailed || len(run.Errors) != 1 || run.Errors[0].Type != ErrorPipeline {
		t.Fatalf("history run = %+v", run)
	}
}

func TestRunMissingTarget(t *testing.T) {
	f := newIntegratedFixture(t)
	_, err := f.pipeline().Run(context.Background(), filepath.Join(f.cfg.Paths.InputText, "nope.txt"), "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBatchSummaryAverage(t *testing.T) {
	var b BatchSummary
	b.add(PipelineResult{Success: true, ExecutionTime: 2 * time.Second})
	b.add(PipelineResult{ExecutionTime: 4 * time.Second})
	if b.Total != 2 || b.Success != 1 || b.Failed != 1 || b.AverageTime() != 3*time.Second {
		t.Fatalf("summary = %+v", b)
	}
}

func TestSiteBuilderReportsStderr(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())
	if err := os.MkdirAll(cfg.Paths.DigitalGarden, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg.Pipeline.BuildCommand = []string{"sh", "-c", "exit 0"}
	if err := NewSiteBuilder(cfg).Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	cfg.Pipeline.BuildCommand = []string{"sh", "-c", "echo astro exploded >&2; exit 3"}
	err := NewSiteBuilder(cfg).Build(context.Background())
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "astro exploded") {
		t.Fatalf("err = %v", err)
	}

	cfg.Pipeline.BuildCommand = nil
	if err := NewSiteBuilder(cfg).Build(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
