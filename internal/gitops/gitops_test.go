package gitops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gardenpipe/internal/logging"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/testsupport"
)

// scriptedExecutor answers commands by their joined command line, falling
// back to prefixed for commands with long or variable arguments, and
// records every invocation.
type scriptedExecutor struct {
	mu       sync.Mutex
	outputs  map[string]string
	prefixed map[string]string
	errs     map[string]error
	calls    []string
}

func (s *scriptedExecutor) Run(_ context.Context, _ string, binary string, args []string) ([]byte, error) {
	line := binary + " " + strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, line)
	for prefix, err := range s.errs {
		if strings.HasPrefix(line, prefix) {
			return nil, err
		}
	}
	if out, ok := s.outputs[line]; ok {
		return []byte(out), nil
	}
	for prefix, out := range s.prefixed {
		if strings.HasPrefix(line, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func (s *scriptedExecutor) called(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

type stubModel struct {
	reply string
	err   error
}

func (m stubModel) Complete(context.Context, llm.Request) (string, error) { return m.reply, m.err }
func (m stubModel) Available() bool                                       { return true }

var fixedNow = time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)

func newRepo(t *testing.T, exec *scriptedExecutor, model Completer) *Repo {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	repo := New(cfg, model, logging.NewNop(), WithExecutor(exec), WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(repo.Close)
	return repo
}

func deployExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		outputs: map[string]string{
			"git diff --staged --name-only": "src/content/insights/a.md\n",
			"git rev-parse HEAD":            "abcdef1234567890\n",
			"git remote get-url origin":     "git@github.com:alice/garden.git\n",
		},
		prefixed: map[string]string{
			"gh pr create": "https://github.com/alice/garden/pull/7\n",
		},
	}
}

func TestPagesURL(t *testing.T) {
	cases := map[string]string{
		"git@github.com:user/repo.git":     "https://user.github.io/repo/",
		"https://github.com/user/repo.git": "https://user.github.io/repo/",
		"https://github.com/user/repo":     "https://user.github.io/repo/",
		"https://gitlab.com/user/repo.git": "",
		"https://github.com/user":          "",
		"":                                 "",
	}
	for remote, want := range cases {
		if got := PagesURL(remote); got != want {
			t.Errorf("PagesURL(%q) = %q, want %q", remote, got, want)
		}
	}
}

func TestBranchName(t *testing.T) {
	if got := BranchName("automation/", fixedNow); got != "automation/20260314_101500" {
		t.Fatalf("BranchName = %q", got)
	}
}

func TestParseStatus(t *testing.T) {
	out := " M src/content/a.md\nMM b.md\n?? new.md\nA  added.md\n D gone.md\nR  old.md -> renamed.md\n"
	tree := ParseStatus(out)
	if len(tree.Modified) != 2 || tree.Modified[0] != "src/content/a.md" {
		t.Fatalf("modified = %v", tree.Modified)
	}
	if len(tree.New) != 2 || tree.New[1] != "added.md" {
		t.Fatalf("new = %v", tree.New)
	}
	if len(tree.Deleted) != 1 || tree.Deleted[0] != "gone.md" {
		t.Fatalf("deleted = %v", tree.Deleted)
	}
	if ParseStatus("").HasChanges() {
		t.Fatal("empty status has no changes")
	}
}

func TestFormatTemplate(t *testing.T) {
	got := FormatTemplate("{category} - {title} ({unknown})", map[string]string{"category": "ideas", "title": "T"})
	if got != "ideas - T ({unknown})" {
		t.Fatalf("FormatTemplate = %q", got)
	}
}

func TestDeployCommitsPushesAndOpensPR(t *testing.T) {
	exec := deployExecutor()
	repo := newRepo(t, exec, nil)
	ctx := services.WithSessionID(context.Background(), "sess-1")

	items := []Item{{Path: "src/content/insights/a.md", Content: []byte("# A\n"), Category: "insights", Title: "A", SourceFile: "a.txt"}}
	result := repo.Deploy(ctx, items)

	if !result.Success || result.CommitsCreated != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.BranchName != "automation/20260314_101500" || result.SessionID != "sess-1" {
		t.Fatalf("branch/session = %q/%q", result.BranchName, result.SessionID)
	}
	if result.CommitHash != "abcdef1234567890" {
		t.Fatalf("hash = %q", result.CommitHash)
	}
	if result.DeploymentURL != "https://alice.github.io/garden/" {
		t.Fatalf("deployment url = %q", result.DeploymentURL)
	}
	if result.PRURL != "https://github.com/alice/garden/pull/7" {
		t.Fatalf("pr url = %q", result.PRURL)
	}
	data, err := os.ReadFile(filepath.Join(repo.Path(), "src", "content", "insights", "a.md"))
	if err != nil || string(data) != "# A\n" {
		t.Fatalf("article not written: %q, %v", data, err)
	}

	want := []string{
		"git status --porcelain",
		"git checkout main",
		"git pull origin main",
		"git checkout -b automation/20260314_101500",
		"git add -- src/content/insights/a.md",
		"git diff --staged --name-only",
		"git commit -m 🤖 Automated content: insights - A",
		"git rev-parse HEAD",
		"git push -u origin automation/20260314_101500",
		"gh pr create --title 🤖 Automated Content Update - sess-1",
		"git remote get-url origin",
	}
	if len(exec.calls) != len(want) {
		t.Fatalf("calls = %q", exec.calls)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(exec.calls[i], prefix) {
			t.Fatalf("call %d = %q, want prefix %q", i, exec.calls[i], prefix)
		}
	}
	if !strings.Contains(exec.calls[6], "Session: sess-1") {
		t.Fatalf("commit message missing session: %q", exec.calls[6])
	}
}

func TestDeployWithNothingStagedSucceedsWithoutCommit(t *testing.T) {
	exec := &scriptedExecutor{outputs: map[string]string{}}
	repo := newRepo(t, exec, nil)
	result := repo.Deploy(context.Background(), []Item{{Path: "src/content/ideas/b.md", Content: []byte("b")}})
	if !result.Success || result.CommitHash != "" || result.CommitsCreated != 0 {
		t.Fatalf("result = %+v", result)
	}
	if exec.called("git commit") {
		t.Fatal("commit must not run with an empty index")
	}
	if result.SessionID != "20260314_101500" {
		t.Fatalf("session = %q", result.SessionID)
	}
}

func TestDeployPushFailureIsSoft(t *testing.T) {
	exec := deployExecutor()
	exec.errs = map[string]error{"git push": errors.New("auth failed")}
	repo := newRepo(t, exec, nil)
	result := repo.Deploy(context.Background(), []Item{{Path: "a.md", Content: []byte("a")}})
	if !result.Success || len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "push") {
		t.Fatalf("result = %+v", result)
	}
	if exec.called("gh pr create") {
		t.Fatal("pull request must not be opened after a failed push")
	}
}

func TestDeployCommitFailureFails(t *testing.T) {
	exec := deployExecutor()
	exec.errs = map[string]error{"git commit": errors.New("hook rejected")}
	repo := newRepo(t, exec, nil)
	result := repo.Deploy(context.Background(), []Item{{Path: "a.md", Content: []byte("a")}})
	if result.Success || result.CommitHash != "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestDeployRejectsPathsOutsideRepository(t *testing.T) {
	exec := &scriptedExecutor{outputs: map[string]string{}}
	repo := newRepo(t, exec, nil)
	result := repo.Deploy(context.Background(), []Item{{Path: "../escape.md", Content: []byte("x")}})
	if result.Success || len(result.FilesDeployed) != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestCommitChangesUsesModelMessage(t *testing.T) {
	exec := &scriptedExecutor{outputs: map[string]string{
		"git status --porcelain": "?? src/content/ideas/x.md\n M README.md\n",
		"git rev-parse HEAD":     "1234567890abcdef\n",
	}}
	repo := newRepo(t, exec, stubModel{reply: "content(ideas): add x article\nextra line"})
	result := repo.CommitChanges(context.Background(), []string{"src/content/ideas/x.md"}, "")
	if !result.Success || result.CommitMessage != "content(ideas): add x article" || result.FilesCommitted != 1 {
		t.Fatalf("result = %+v", result)
	}
	if exec.called("git add -- README.md") {
		t.Fatal("unrequested paths must not be staged")
	}
}

func TestCommitChangesFallsBackToDefaultMessage(t *testing.T) {
	exec := &scriptedExecutor{outputs: map[string]string{
		"git status --porcelain": "?? a.md\n?? b.md\n",
	}}
	repo := newRepo(t, exec, stubModel{err: errors.New("offline")})
	result := repo.CommitChanges(context.Background(), nil, "")
	if result.CommitMessage != "content: add new articles (2 files) - 2026-03-14 10:15" {
		t.Fatalf("message = %q", result.CommitMessage)
	}
}

func TestCommitChangesWithoutChanges(t *testing.T) {
	repo := newRepo(t, &scriptedExecutor{outputs: map[string]string{}}, nil)
	if result := repo.CommitChanges(context.Background(), nil, ""); result.Success || result.ErrorMessage == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestDefaultCommitMessage(t *testing.T) {
	cases := []struct {
		tree WorkingTree
		want string
	}{
		{WorkingTree{Modified: []string{"a"}}, "content: update articles (1 files) - 2026-03-14 10:15"},
		{WorkingTree{Deleted: []string{"a", "b"}}, "content: remove old articles (2 files) - 2026-03-14 10:15"},
		{WorkingTree{New: []string{"a"}, Modified: []string{"b"}}, "content: automated update (2 files) - 2026-03-14 10:15"},
	}
	for _, tc := range cases {
		if got := DefaultCommitMessage(tc.tree, fixedNow); got != tc.want {
			t.Errorf("DefaultCommitMessage(%+v) = %q, want %q", tc.tree, got, tc.want)
		}
	}
}

func TestCleanupOldBranchesKeepsNewest(t *testing.T) {
	exec := &scriptedExecutor{outputs: map[string]string{
		"git branch -r": "  origin/HEAD -> origin/main\n  origin/main\n  origin/automation/20260101_000000\n  origin/automation/20260103_000000\n  origin/automation/20260102_000000\n",
	}}
	repo := newRepo(t, exec, nil)
	deleted, err := repo.CleanupOldBranches(context.Background(), 1)
	if err != nil || deleted != 2 {
		t.Fatalf("deleted = %d, err = %v", deleted, err)
	}
	if !exec.called("git push origin --delete automation/20260101_000000") ||
		!exec.called("git push origin --delete automation/20260102_000000") ||
		exec.called("git push origin --delete automation/20260103_000000") {
		t.Fatalf("calls = %q", exec.calls)
	}
}

func TestRepositoryStatus(t *testing.T) {
	exec := &scriptedExecutor{outputs: map[string]string{
		"git --version":                        "git version 2.47.0\n",
		"git status --porcelain":               " M a.md\n",
		"git branch --show-current":            "main\n",
		"git remote get-url origin":            "https://github.com/u/r.git\n",
		"git log -1 --pretty=format:%H|%s|%ai": "0123456789abcdef|add: x|2026-03-14 10:00:00 +0900",
	}}
	repo := newRepo(t, exec, nil)
	status := repo.RepositoryStatus(context.Background())
	if !status.GitAvailable || !status.HasChanges || status.Branch != "main" {
		t.Fatalf("status = %+v", status)
	}
	if status.LastCommit == nil || status.LastCommit.Hash != "01234567" || status.LastCommit.Message != "add: x" {
		t.Fatalf("last commit = %+v", status.LastCommit)
	}
	if h := repo.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("health = %+v", h)
	}
}

type blockingExecutor struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (b *blockingExecutor) Run(ctx context.Context, _ string, _ string, args []string) ([]byte, error) {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if len(args) > 0 && args[0] == "hang" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	time.Sleep(2 * time.Millisecond)
	return []byte("ok"), nil
}

func TestRunnerSerializesCommands(t *testing.T) {
	exec := &blockingExecutor{}
	r := newRunner(exec, t.TempDir())
	defer r.close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.run(context.Background(), time.Second, "git", "status"); err != nil {
				t.Errorf("run: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := exec.maxSeen.Load(); got != 1 {
		t.Fatalf("max concurrent commands = %d, want 1", got)
	}
}

func TestRunnerAppliesPerJobTimeout(t *testing.T) {
	r := newRunner(&blockingExecutor{}, t.TempDir())
	defer r.close()
	_, err := r.run(context.Background(), 10*time.Millisecond, "git", "hang")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, err := r.run(context.Background(), time.Second, "git", "status"); err != nil {
		t.Fatalf("runner should keep serving after a timeout: %v", err)
	}
}

func TestRunnerRejectsAfterClose(t *testing.T) {
	r := newRunner(&blockingExecutor{}, t.TempDir())
	r.close()
	if _, err := r.run(context.Background(), time.Second, "git", "status"); !errors.Is(err, ErrRunnerClosed) {
		t.Fatalf("expected ErrRunnerClosed, got %v", err)
	}
}
