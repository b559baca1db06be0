package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gardenpipe/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: " ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank detail %q", results[2].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Git.CreatePR = false
	cfg.Pipeline.EnableSiteBuild = true
	reqs := Requirements(&cfg)

	var gh, build *Requirement
	for i := range reqs {
		switch reqs[i].Name {
		case "GitHub CLI":
			gh = &reqs[i]
		case "Site build":
			build = &reqs[i]
		}
	}
	if gh == nil || !gh.Optional {
		t.Fatalf("expected gh to be optional without PR creation: %#v", gh)
	}
	if build == nil || build.Command != "npm" {
		t.Fatalf("expected build command requirement: %#v", build)
	}
	if Requirements(nil) != nil {
		t.Fatal("expected nil requirements for nil config")
	}
}

func TestCheckDisk(t *testing.T) {
	status := CheckDisk(t.TempDir(), 0)
	if !status.Available {
		t.Fatalf("expected zero threshold to pass: %#v", status)
	}
	if !strings.HasSuffix(status.Detail, "free") {
		t.Fatalf("unexpected detail %q", status.Detail)
	}
	missing := CheckDisk(filepath.Join(t.TempDir(), "absent"), 1)
	if missing.Available {
		t.Fatal("expected statfs failure to report unavailable")
	}
}
