package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	envOnce sync.Once
	envPath string
	envErr  error

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
	}
}

// loadEnv must run before ensureConfig so .env keys reach the overrides.
func (c *commandContext) loadEnv() error {
	c.envOnce.Do(func() {
		var path string
		if c.envFlag != nil {
			path = strings.TrimSpace(*c.envFlag)
		}
		c.envPath, c.envErr = config.LoadDotEnv(path)
	})
	return c.envErr
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// newLogger builds the run logger on stderr. Verbose forces debug level
// without touching the shared config.
func (c *commandContext) newLogger(cmd *cobra.Command, sessionID string, verbose bool) (*slog.Logger, string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	if verbose {
		copied := *cfg
		copied.Logging.Level = "debug"
		cfg = &copied
	}
	logger, logPath, err := logging.NewFromConfig(cfg, sessionID, cmd.ErrOrStderr())
	if err != nil {
		return nil, "", fmt.Errorf("init logging: %w", err)
	}
	return logger, logPath, nil
}

func newSessionID(now time.Time) string {
	return now.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

const exitInterrupted = 130

// exitError carries a process exit code back to main.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

