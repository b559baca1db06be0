package gitops

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"gardenpipe/internal/logging"
	"gardenpipe/internal/services/llm"
)

// CommitResult reports the outcome of CommitChanges.
type CommitResult struct {
	Success        bool
	CommitHash     string
	CommitMessage  string
	FilesCommitted int
	ErrorMessage   string
}

// CommitChanges stages the given paths (or every change when paths is
// empty) and commits them with a generated conventional-commit message.
// extra is passed to the model as context.
func (r *Repo) CommitChanges(ctx context.Context, paths []string, extra string) CommitResult {
	logger := logging.WithContext(ctx, r.logger)
	tree, err := r.Status(ctx)
	if err != nil {
		return CommitResult{ErrorMessage: "git status failed: " + err.Error()}
	}
	if len(paths) > 0 {
		tree = tree.only(paths)
	}
	if !tree.HasChanges() {
		return CommitResult{ErrorMessage: "No changes to commit"}
	}
	if err := r.Add(ctx, append(slices.Clone(tree.New), tree.Modified...)...); err != nil {
		return CommitResult{ErrorMessage: "git add failed: " + err.Error()}
	}
	if err := r.Remove(ctx, tree.Deleted...); err != nil {
		return CommitResult{ErrorMessage: "git rm failed: " + err.Error()}
	}

	message := r.GenerateCommitMessage(ctx, tree, extra)
	if err := r.Commit(ctx, message); err != nil {
		return CommitResult{CommitMessage: message, ErrorMessage: "Git commit failed: " + err.Error()}
	}
	hash, err := r.HeadHash(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "could not read commit hash", "git_head_failed", logging.Error(err))
	}
	logger.Info("changes committed",
		logging.String(logging.FieldEventType, "git_commit_created"),
		logging.String("hash", shortHash(hash)),
		logging.String("message", message),
		logging.Int("files", tree.Total()))
	return CommitResult{Success: true, CommitHash: hash, CommitMessage: message, FilesCommitted: tree.Total()}
}

// GenerateCommitMessage asks the model for a one-line conventional commit
// message, falling back to DefaultCommitMessage.
func (r *Repo) GenerateCommitMessage(ctx context.Context, tree WorkingTree, extra string) string {
	fallback := DefaultCommitMessage(tree, r.now())
	if r.llm == nil || !r.llm.Available() {
		return fallback
	}
	raw, err := r.llm.Complete(ctx, llm.Request{
		Prompt:      commitPrompt(tree, extra),
		MaxTokens:   100,
		Temperature: llm.Temperature(0.3),
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "commit message generation failed", "git_message_fallback",
			logging.String(logging.FieldImpact, "default commit message used"),
			logging.Error(err))
		return fallback
	}
	first, _, _ := strings.Cut(strings.TrimSpace(raw), "\n")
	first = strings.Trim(strings.TrimSpace(first), "`")
	if first == "" {
		return fallback
	}
	return first
}

// DefaultCommitMessage describes the change set without a model.
func DefaultCommitMessage(tree WorkingTree, now time.Time) string {
	stamp := now.Format("2006-01-02 15:04")
	switch {
	case len(tree.New) > 0 && len(tree.Modified) == 0:
		return fmt.Sprintf("content: add new articles (%d files) - %s", len(tree.New), stamp)
	case len(tree.Modified) > 0 && len(tree.New) == 0:
		return fmt.Sprintf("content: update articles (%d files) - %s", len(tree.Modified), stamp)
	case len(tree.Deleted) > 0:
		return fmt.Sprintf("content: remove old articles (%d files) - %s", len(tree.Deleted), stamp)
	}
	return fmt.Sprintf("content: automated update (%d files) - %s", len(tree.New)+len(tree.Modified), stamp)
}

func commitPrompt(tree WorkingTree, extra string) string {
	var summary []string
	describe := func(label string, files []string) {
		if len(files) > 0 {
			summary = append(summary, fmt.Sprintf("%s (%d): %s", label, len(files), strings.Join(firstN(files, 5), ", ")))
		}
	}
	describe("New files", tree.New)
	describe("Modified files", tree.Modified)
	describe("Deleted files", tree.Deleted)
	if strings.TrimSpace(extra) == "" {
		extra = "Automated content update from Digital Garden pipeline"
	}
	return "Git commit message generation for Digital Garden project.\n\n" +
		"# Changes Summary\n" + strings.Join(summary, "\n") + "\n\n" +
		"# Context\n" + extra + "\n\n" +
		"# Requirements\n" +
		"- Follow conventional commits format: type(scope): description\n" +
		"- Types: feat, fix, docs, style, refactor, content, build\n" +
		"- Keep description under 72 characters\n" +
		"- Use present tense (\"add\" not \"added\")\n" +
		"- Be specific about what changed\n\n" +
		"Generate ONE commit message line only."
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

// PushToRemote pushes branch, or the current branch when empty, to origin.
func (r *Repo) PushToRemote(ctx context.Context, branch string) error {
	if branch == "" {
		current, err := r.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		branch = current
	}
	if err := r.Push(ctx, branch, false); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

// CleanupOldBranches deletes the oldest remote automation branches beyond
// keep and returns how many were deleted. Branch names sort by their
// timestamp suffix.
func (r *Repo) CleanupOldBranches(ctx context.Context, keep int) (int, error) {
	logger := logging.WithContext(ctx, r.logger)
	remote, err := r.RemoteBranches(ctx)
	if err != nil {
		return 0, err
	}
	prefix := "origin/" + r.cfg.FeatureBranchPrefix
	var automation []string
	for _, b := range remote {
		if strings.HasPrefix(b, prefix) {
			automation = append(automation, strings.TrimPrefix(b, "origin/"))
		}
	}
	keep = max(keep, 0)
	if len(automation) <= keep {
		return 0, nil
	}
	slices.Sort(automation)
	deleted := 0
	for _, branch := range automation[:len(automation)-keep] {
		if err := r.DeleteRemoteBranch(ctx, branch); err != nil {
			logging.WarnWithContext(logger, "failed to delete branch", "git_branch_delete_failed",
				logging.String("branch", branch), logging.Error(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logger.Info("branch cleanup completed",
			logging.String(logging.FieldEventType, "git_branch_cleanup"),
			logging.Int("deleted", deleted),
			logging.Int("remaining", len(automation)-deleted))
	}
	return deleted, nil
}
