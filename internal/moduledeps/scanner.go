package moduledeps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ProcessScanner runs the frontend in dependency-scanning mode and parses
// the graph it prints on stdout.
type ProcessScanner struct {
	Frontend string
}

// NewProcessScanner returns a factory for a frontend-backed scanner.
func NewProcessScanner(frontend string) ScannerFactory {
	return func() (Scanner, error) {
		if frontend == "" {
			return nil, fmt.Errorf("no frontend configured for dependency scanning")
		}
		path, err := exec.LookPath(frontend)
		if err != nil {
			return nil, fmt.Errorf("locate frontend: %w", err)
		}
		return &ProcessScanner{Frontend: path}, nil
	}
}

// Scan implements Scanner.
func (s *ProcessScanner) Scan(ctx context.Context, workingDir string, commandLine []string) (*Graph, error) {
	args := append([]string{"-frontend", "-scan-dependencies"}, commandLine...)
	cmd := exec.CommandContext(ctx, s.Frontend, args...)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", s.Frontend, err, strings.TrimSpace(stderr.String()))
	}

	g, err := Decode(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parse scan output: %w", err)
	}
	return g, nil
}
