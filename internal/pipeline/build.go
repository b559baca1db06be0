package pipeline

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"gardenpipe/internal/config"
	"gardenpipe/internal/services"
	"gardenpipe/internal/textutil"
)

const buildErrorLimit = 200

// SiteBuilder builds the static site after new content is written.
type SiteBuilder interface {
	Build(ctx context.Context) error
}

type commandBuilder struct {
	dir  string
	argv []string
}

// NewSiteBuilder runs pipeline.build_command inside the garden checkout.
func NewSiteBuilder(cfg *config.Config) SiteBuilder {
	return commandBuilder{dir: cfg.Paths.DigitalGarden, argv: cfg.Pipeline.BuildCommand}
}

func (b commandBuilder) Build(ctx context.Context) error {
	if len(b.argv) == 0 || strings.TrimSpace(b.argv[0]) == "" {
		return services.Wrap(services.ErrConfiguration, "site", "build", "build command not configured", nil)
	}
	cmd := exec.CommandContext(ctx, b.argv[0], b.argv[1:]...) //nolint:gosec
	cmd.Dir = b.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := textutil.Truncate(strings.TrimSpace(stderr.String()), buildErrorLimit, "...")
		if detail == "" {
			detail = strings.Join(b.argv, " ")
		}
		return services.Wrap(services.ErrExternalTool, "site", "build", detail, err)
	}
	return nil
}
