package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/stage"
)

const (
	defaultCommandTimeout = 30 * time.Second
	defaultPushTimeout    = 120 * time.Second
)

// Completer generates commit messages.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Available() bool
}

// Repo runs git and gh against one repository.
type Repo struct {
	cfg         config.Git
	path        string
	git         string
	gh          string
	timeout     time.Duration
	pushTimeout time.Duration
	exec        Executor
	runner      *runner
	llm         Completer
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes a Repo.
type Option func(*Repo)

// WithExecutor replaces the subprocess executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Repo) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithClock overrides the time source used for branch names and messages.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) {
		if now != nil {
			r.now = now
		}
	}
}

// New starts the command worker for the configured repository. Close
// stops it.
func New(cfg *config.Config, client Completer, logger *slog.Logger, opts ...Option) *Repo {
	git := cfg.Git
	path := git.RepositoryPath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	r := &Repo{
		cfg:         git,
		path:        path,
		git:         orDefault(git.GitBinary, "git"),
		gh:          orDefault(git.GHBinary, "gh"),
		timeout:     seconds(git.CommandTimeoutSeconds, defaultCommandTimeout),
		pushTimeout: seconds(git.PushTimeoutSeconds, defaultPushTimeout),
		exec:        commandExecutor{},
		llm:         client,
		logger:      logging.NewComponentLogger(logger, "gitops"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.runner = newRunner(r.exec, r.path)
	return r
}

// Close stops the command worker. Pending callers receive ErrRunnerClosed.
func (r *Repo) Close() {
	if r != nil && r.runner != nil {
		r.runner.close()
	}
}

// Path returns the absolute repository path.
func (r *Repo) Path() string { return r.path }

func (r *Repo) gitLocal(ctx context.Context, args ...string) (string, error) {
	return r.runner.run(ctx, r.timeout, r.git, args...)
}

func (r *Repo) gitNetwork(ctx context.Context, args ...string) (string, error) {
	return r.runner.run(ctx, r.pushTimeout, r.git, args...)
}

// Version returns `git --version`.
func (r *Repo) Version(ctx context.Context) (string, error) {
	out, err := r.gitLocal(ctx, "--version")
	return strings.TrimSpace(out), err
}

// Status parses `git status --porcelain`.
func (r *Repo) Status(ctx context.Context) (WorkingTree, error) {
	out, err := r.gitLocal(ctx, "status", "--porcelain")
	if err != nil {
		return WorkingTree{}, err
	}
	return ParseStatus(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.gitLocal(ctx, "branch", "--show-current")
	return strings.TrimSpace(out), err
}

func (r *Repo) Checkout(ctx context.Context, branch string) error {
	_, err := r.gitLocal(ctx, "checkout", branch)
	return err
}

func (r *Repo) CreateBranch(ctx context.Context, branch string) error {
	_, err := r.gitLocal(ctx, "checkout", "-b", branch)
	return err
}

func (r *Repo) Pull(ctx context.Context, branch string) error {
	_, err := r.gitNetwork(ctx, "pull", "origin", branch)
	return err
}

// Add stages paths relative to the repository root.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.gitLocal(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Remove stages deletions.
func (r *Repo) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.gitLocal(ctx, append([]string{"rm", "--quiet", "--"}, paths...)...)
	return err
}

// StagedFiles lists paths in the index that differ from HEAD.
func (r *Repo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.gitLocal(ctx, "diff", "--staged", "--name-only")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (r *Repo) Commit(ctx context.Context, message string) error {
	_, err := r.gitLocal(ctx, "commit", "-m", message)
	return err
}

// HeadHash returns the full hash of HEAD.
func (r *Repo) HeadHash(ctx context.Context) (string, error) {
	out, err := r.gitLocal(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

// Push pushes branch to origin, optionally setting the upstream.
func (r *Repo) Push(ctx context.Context, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	_, err := r.gitNetwork(ctx, append(args, "origin", branch)...)
	return err
}

// RemoteURL returns the origin URL.
func (r *Repo) RemoteURL(ctx context.Context) (string, error) {
	out, err := r.gitLocal(ctx, "remote", "get-url", "origin")
	return strings.TrimSpace(out), err
}

// RemoteBranches lists remote-tracking branches, skipping symbolic refs.
func (r *Repo) RemoteBranches(ctx context.Context) ([]string, error) {
	out, err := r.gitLocal(ctx, "branch", "-r")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range lines(out) {
		if strings.Contains(line, "->") {
			continue
		}
		branches = append(branches, line)
	}
	return branches, nil
}

func (r *Repo) DeleteRemoteBranch(ctx context.Context, branch string) error {
	_, err := r.gitNetwork(ctx, "push", "origin", "--delete", branch)
	return err
}

// CommitInfo describes one commit.
type CommitInfo struct {
	Hash    string
	Message string
	Date    string
}

// LastCommit returns HEAD with an eight-character hash.
func (r *Repo) LastCommit(ctx context.Context) (*CommitInfo, error) {
	out, err := r.gitLocal(ctx, "log", "-1", "--pretty=format:%H|%s|%ai")
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(strings.TrimSpace(out), "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("unexpected git log output %q", out)
	}
	hash := parts[0]
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return &CommitInfo{Hash: hash, Message: parts[1], Date: parts[2]}, nil
}

// CreatePullRequest opens a pull request with gh and returns its URL.
func (r *Repo) CreatePullRequest(ctx context.Context, title, body, base, head string) (string, error) {
	out, err := r.runner.run(ctx, r.pushTimeout, r.gh, "pr", "create",
		"--title", title, "--body", body, "--base", base, "--head", head)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RepositoryStatus summarizes the repository for status output.
type RepositoryStatus struct {
	GitAvailable bool
	Path         string
	Branch       string
	HasChanges   bool
	RemoteURL    string
	LastCommit   *CommitInfo
	Error        string
}

// RepositoryStatus gathers branch, change, remote and HEAD information.
// Individual lookups that fail leave their field empty.
func (r *Repo) RepositoryStatus(ctx context.Context) RepositoryStatus {
	status := RepositoryStatus{Path: r.path}
	if _, err := r.Version(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.GitAvailable = true
	tree, err := r.Status(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.HasChanges = tree.HasChanges()
	status.Branch, _ = r.CurrentBranch(ctx)
	status.RemoteURL, _ = r.RemoteURL(ctx)
	status.LastCommit, _ = r.LastCommit(ctx)
	return status
}

// HealthCheck verifies git is installed and the path is a repository.
func (r *Repo) HealthCheck(ctx context.Context) stage.Health {
	if _, err := r.Version(ctx); err != nil {
		return stage.Unhealthy("git", "git unavailable: "+err.Error())
	}
	if _, err := r.Status(ctx); err != nil {
		return stage.Unhealthy("git", "not a git repository: "+r.path)
	}
	return stage.Healthy("git")
}

func lines(out string) []string {
	var result []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return result
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
