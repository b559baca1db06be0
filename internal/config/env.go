package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file into the process
// environment, replacing existing values. With an empty path it searches the
// working directory and its parents. The returned path is empty when no file
// was found.
func LoadDotEnv(path string) (string, error) {
	if path == "" {
		found, err := findDotEnv()
		if err != nil || found == "" {
			return "", err
		}
		path = found
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if err := godotenv.Overload(expanded); err != nil {
		return "", fmt.Errorf("load %s: %w", expanded, err)
	}
	return expanded, nil
}

func findDotEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ".env")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
