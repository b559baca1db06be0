package gitops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gardenpipe/internal/fileutil"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/services"
)

const maxPRFiles = 10

// Item is one article to publish. Path is relative to the repository root.
type Item struct {
	Path       string
	Content    []byte
	Category   string
	Title      string
	SourceFile string
}

// DeploymentResult reports the outcome of Deploy. CommitHash is empty when
// nothing needed committing.
type DeploymentResult struct {
	Success        bool
	CommitsCreated int
	BranchName     string
	PRURL          string
	DeploymentURL  string
	FilesDeployed  []string
	Errors         []string
	CommitHash     string
	SessionID      string
}

func (d *DeploymentResult) fail(msg string) DeploymentResult {
	d.Success = false
	d.Errors = append(d.Errors, msg)
	return *d
}

// Deploy publishes items on a fresh automation branch. The session ID is
// taken from ctx when present.
func (r *Repo) Deploy(ctx context.Context, items []Item) DeploymentResult {
	started := r.now()
	logger := logging.WithContext(ctx, r.logger)
	sessionID, ok := services.SessionIDFromContext(ctx)
	if !ok || sessionID == "" {
		sessionID = started.Format("20060102_150405")
	}
	result := DeploymentResult{SessionID: sessionID}

	if _, err := r.Status(ctx); err != nil {
		logging.ErrorWithContext(logger, "repository check failed", "git_repository_invalid",
			logging.String(logging.FieldErrorHint, "check git.repository_path points at a git checkout"),
			logging.Error(err))
		return result.fail("repository check failed: " + err.Error())
	}

	base := r.cfg.MainBranch
	if err := r.Checkout(ctx, base); err != nil {
		logging.WarnWithContext(logger, "checkout of main branch failed", "git_checkout_failed",
			logging.String("branch", base), logging.Error(err))
	}
	if err := r.Pull(ctx, base); err != nil {
		logging.WarnWithContext(logger, "pull failed", "git_pull_failed",
			logging.String(logging.FieldImpact, "branch created from local state"),
			logging.Error(err))
	}
	branch := BranchName(r.cfg.FeatureBranchPrefix, started)
	if err := r.CreateBranch(ctx, branch); err != nil {
		return result.fail("failed to create deployment branch: " + err.Error())
	}
	result.BranchName = branch
	logger.Info("deployment branch created",
		logging.String(logging.FieldEventType, "git_branch_created"),
		logging.String("branch", branch))

	for _, item := range items {
		rel := filepath.ToSlash(filepath.Clean(item.Path))
		if strings.HasPrefix(rel, "../") || filepath.IsAbs(item.Path) {
			result.Errors = append(result.Errors, "refusing to write outside repository: "+item.Path)
			continue
		}
		if err := fileutil.WriteFileAtomic(filepath.Join(r.path, filepath.FromSlash(rel)), item.Content, 0o644); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error deploying %s: %v", rel, err))
			continue
		}
		if err := r.Add(ctx, rel); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to stage %s: %v", rel, err))
			continue
		}
		result.FilesDeployed = append(result.FilesDeployed, rel)
	}
	if len(result.FilesDeployed) == 0 {
		return result.fail("No files were successfully deployed")
	}

	staged, err := r.StagedFiles(ctx)
	if err != nil {
		return result.fail("failed to read staged files: " + err.Error())
	}
	if len(staged) == 0 {
		logger.Info("no changes to commit",
			logging.String(logging.FieldEventType, "git_nothing_to_commit"),
			logging.String("branch", branch))
		result.Success = true
		return result
	}

	if err := r.Commit(ctx, r.commitMessage(items, sessionID)); err != nil {
		return result.fail("Failed to create commit: " + err.Error())
	}
	result.CommitsCreated = 1
	result.CommitHash, err = r.HeadHash(ctx)
	if err != nil || result.CommitHash == "" {
		result.CommitHash = "unknown"
	}
	logger.Info("batch commit created",
		logging.String(logging.FieldEventType, "git_commit_created"),
		logging.String("hash", shortHash(result.CommitHash)),
		logging.Int("files", len(result.FilesDeployed)))

	if r.cfg.AutoPush {
		if err := r.Push(ctx, branch, true); err != nil {
			logging.WarnWithContext(logger, "push failed", "git_push_failed",
				logging.String(logging.FieldImpact, "commit exists only locally"),
				logging.String(logging.FieldErrorHint, "check remote credentials"),
				logging.Error(err))
			result.Errors = append(result.Errors, "Failed to push branch: "+err.Error())
		} else if r.cfg.CreatePR {
			body := FormatTemplate(r.cfg.PRTemplate, map[string]string{
				"category":        "automated_content",
				"source_file":     "automation_pipeline",
				"processing_time": fmt.Sprintf("%.1f", r.now().Sub(started).Seconds()),
				"changes_summary": changesSummary(result.FilesDeployed),
			})
			title := "🤖 Automated Content Update - " + sessionID
			url, err := r.CreatePullRequest(ctx, title, body, base, branch)
			if err != nil {
				logging.WarnWithContext(logger, "pull request creation failed", "git_pr_failed",
					logging.String(logging.FieldErrorHint, "check gh is installed and authenticated"),
					logging.Error(err))
				result.Errors = append(result.Errors, "Failed to create pull request: "+err.Error())
			} else {
				result.PRURL = url
			}
		}
	}
	if r.cfg.EnableGHPages {
		if remote, err := r.RemoteURL(ctx); err == nil {
			result.DeploymentURL = PagesURL(remote)
		}
	}

	result.Success = true
	logger.Info("deployment completed",
		logging.String(logging.FieldEventType, "git_deploy_completed"),
		logging.String("branch", branch),
		logging.Int("files", len(result.FilesDeployed)),
		logging.String("pr_url", result.PRURL),
		logging.Duration("elapsed", time.Since(started)))
	return result
}

func (r *Repo) commitMessage(items []Item, sessionID string) string {
	values := map[string]string{"session_id": sessionID}
	if len(items) == 1 {
		values["category"] = items[0].Category
		values["title"] = items[0].Title
		values["source_file"] = items[0].SourceFile
	} else {
		values["category"] = "mixed"
		values["title"] = fmt.Sprintf("%d files", len(items))
		values["source_file"] = "batch_processing"
	}
	return FormatTemplate(r.cfg.CommitMessageTemplate, values)
}

func changesSummary(files []string) string {
	var b strings.Builder
	for i, f := range files {
		if i == maxPRFiles {
			fmt.Fprintf(&b, "- ... and %d more files\n", len(files)-maxPRFiles)
			break
		}
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
