package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"gardenpipe/internal/config"
	"gardenpipe/internal/retry"
	"gardenpipe/internal/services/llm"
)

// CheckLLM verifies that the Anthropic API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt.
func CheckLLM(ctx context.Context, name string, cfg config.Classification) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryPolicy(retry.FromSettings(1, 0)))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable (" + cfg.Model + ")"}
}

// CheckAPIKey reports whether a key is configured. Optional keys pass when
// missing; their stage is skipped at run time.
func CheckAPIKey(name, key string, required bool) Result {
	switch {
	case key != "":
		return Result{Name: name, Passed: true, Detail: "configured"}
	case required:
		return Result{Name: name, Detail: "missing"}
	default:
		return Result{Name: name, Passed: true, Detail: "not configured (stage skipped)"}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGarden verifies the site checkout is a writable git work tree.
func CheckGarden(path string) Result {
	const name = "Digital garden"
	result := CheckDirectoryAccess(name, path)
	if !result.Passed {
		return result
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a git repository)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (git work tree)", path)}
}

func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
