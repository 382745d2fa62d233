package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/swiftdriver/internal/incremental"
	"github.com/roach88/swiftdriver/internal/manifest"
	"github.com/roach88/swiftdriver/internal/moduledeps"
	"github.com/roach88/swiftdriver/internal/planner"
	"github.com/roach88/swiftdriver/internal/store"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// session is what the manifest-driven commands share: the loaded manifest,
// the file system and, when the build is incremental, the state store.
type session struct {
	opts     *RootOptions
	manifest *manifest.Manifest
	fs       vfs.FileSystem
	store    *store.Store
}

// openSession loads the manifest at path. The store is opened only for
// incremental manifests, and only when withStore is set.
func openSession(opts *RootOptions, path string, withStore bool) (*session, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	s := &session{opts: opts, manifest: m, fs: vfs.NewOSFileSystem()}
	if withStore && m.Options.Incremental {
		st, err := openStore(resolveStatePath(opts.Settings.StateDB, m.Options.WorkingDirectory))
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	return s, nil
}

func (s *session) close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("close build state", "error", err)
	}
}

// driver returns a planner configured for the manifest.
func (s *session) driver(cmd *cobra.Command) (*planner.Driver, error) {
	var options []planner.Option
	if s.store != nil {
		options = append(options, planner.WithStore(s.store))
	}
	if s.opts.IDs != nil {
		options = append(options, planner.WithIDGenerator(s.opts.IDs))
	}
	if s.opts.Settings.ShowIncremental {
		options = append(options, planner.WithReporter(incremental.NewReporter(remarkLogger(cmd))))
	}
	if s.manifest.Options.ExplicitModules {
		oracle, err := s.oracle()
		if err != nil {
			return nil, err
		}
		options = append(options, planner.WithOracle(oracle))
	}
	return planner.New(s.manifest.Options, s.manifest.Toolchain, s.fs, options...), nil
}

func (s *session) oracle() (*moduledeps.Oracle, error) {
	factory := s.opts.Scanner
	if factory == nil {
		factory = moduledeps.NewProcessScanner(s.manifest.Toolchain.Frontend)
	}
	return moduledeps.NewOracle(factory)
}

// resolveStatePath anchors a relative state database path at dir.
func resolveStatePath(path, dir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open build state %s: %w", path, err)
	}
	return st, nil
}

// remarkLogger writes incremental remarks as plain lines to stderr,
// independent of the configured log level.
func remarkLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Warn("received signal, stopping build", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
