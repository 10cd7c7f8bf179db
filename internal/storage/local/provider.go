// Package local implements a local filesystem report provider.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem provider.
type Config struct {
	// BaseDir is the root directory where reports will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Provider writes objects under a base directory.
type Provider struct {
	baseDir string
}

// New creates a local filesystem-backed provider, creating BaseDir when it is
// missing and verifying that it is writable.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable_*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &Provider{baseDir: cfg.BaseDir}, nil
}

// Path resolves objectName under the base directory, rejecting names that
// escape it.
func (p *Provider) Path(objectName string) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", fmt.Errorf("object name is required")
	}
	cleanBase := filepath.Clean(p.baseDir)
	full := filepath.Clean(filepath.Join(cleanBase, filepath.FromSlash(objectName)))
	if !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

// Save writes data to objectName, creating parent directories as needed.
func (p *Provider) Save(_ context.Context, objectName string, data []byte) error {
	full, err := p.Path(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
