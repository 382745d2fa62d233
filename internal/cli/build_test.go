package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swiftdriver/internal/incremental"
	"github.com/roach88/swiftdriver/internal/moduledeps"
	"github.com/roach88/swiftdriver/internal/testutil"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// project is a manifest and its sources in a temporary directory.
type project struct {
	t        *testing.T
	dir      string
	launcher *testutil.FakeLauncher
	scanner  moduledeps.ScannerFactory
}

func newProject(t *testing.T, manifest string, sources map[string]string) *project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "swiftdriver.cue"), []byte(manifest), 0o644))
	p := &project{t: t, dir: dir, launcher: testutil.NewFakeLauncher(vfs.NewOSFileSystem())}
	for name, record := range sources {
		p.write(name, record)
	}
	return p
}

// write creates or updates a source and the dependency record its compile
// produces. Updates move the modification time forward.
func (p *project) write(name, record string) {
	path := p.path(name)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0o755))
	_, statErr := os.Stat(path)
	require.NoError(p.t, os.WriteFile(path, []byte("// "+name+"\n"), 0o644))
	if statErr == nil {
		later := time.Now().Add(time.Hour)
		require.NoError(p.t, os.Chtimes(path, later, later))
	}
	p.launcher.SetRecord(path, record)
}

func (p *project) path(name string) string {
	return filepath.Join(p.dir, filepath.FromSlash(name))
}

func (p *project) stateDB() string {
	return filepath.Join(p.dir, "state.db")
}

// run executes the CLI and returns stdout, stderr and the exit code.
func (p *project) run(args ...string) (string, string, int) {
	p.t.Helper()
	opts := &RootOptions{
		Launcher: p.launcher,
		Scanner:  p.scanner,
		IDs:      incremental.NewFixedGenerator("build-1", "build-2", "build-3"),
	}
	cmd := NewRootCommandWith(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--state-db", p.stateDB()))
	code := ExitSuccess
	if err := cmd.Execute(); err != nil {
		code = ExitCodeOf(err)
	}
	return stdout.String(), stderr.String(), code
}

func (p *project) manifest() string {
	return filepath.Join(p.dir, "swiftdriver.cue")
}

const appManifest = `
module:  "App"
sources: ["Sources/*.swift"]
toolchain: {
	frontend: "/usr/bin/swift-frontend"
	linker:   "/usr/bin/ld"
}
`

const incrementalManifest = `
module:      "App"
sources:     ["Sources/*.swift"]
incremental: true
toolchain: {
	frontend: "/usr/bin/swift-frontend"
	linker:   "/usr/bin/ld"
}
`

func TestBuild_AllJobsRun(t *testing.T) {
	p := newProject(t, appManifest, map[string]string{
		"Sources/a.swift": "",
		"Sources/b.swift": "",
	})

	stdout, _, code := p.run("build", p.manifest(), "-j", "1")
	require.Equal(t, ExitSuccess, code)

	assert.Equal(t, []string{
		"Compiling App a.swift",
		"Compiling App b.swift",
		"Linking App",
	}, p.launcher.Launched())
	assert.Contains(t, stdout, "[1] Compiling App a.swift")
	assert.Contains(t, stdout, "[3] Linking App")
	assert.Contains(t, stdout, "Build of App succeeded: 3 jobs run, 0 failed, 0 skipped")
	assert.FileExists(t, filepath.Join(p.dir, ".build", "App"))
	assert.FileExists(t, filepath.Join(p.dir, ".build", "a.o"))
}

func TestBuild_JobFailureExitsOne(t *testing.T) {
	p := newProject(t, appManifest, map[string]string{
		"Sources/a.swift": "",
		"Sources/b.swift": "",
	})
	p.launcher.FailWith("Compiling App b.swift", 1)

	stdout, stderr, code := p.run("build", p.manifest(), "-j", "1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "error: Compiling App b.swift")
	assert.Contains(t, stdout, "Build of App failed: 2 jobs run, 1 failed, 1 skipped")
	assert.NotContains(t, p.launcher.Launched(), "Linking App")
}

func TestBuild_InvalidManifestExitsTwo(t *testing.T) {
	p := newProject(t, `module: "not an identifier"`, nil)

	stdout, _, code := p.run("build", p.manifest())
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E201]")
	assert.Empty(t, p.launcher.Launched())
}

func TestBuild_DuplicateOutputExitsTwo(t *testing.T) {
	p := newProject(t, `
module:  "App"
sources: ["**/*.swift"]
toolchain: {
	frontend: "/usr/bin/swift-frontend"
	linker:   "/usr/bin/ld"
}
`, map[string]string{
		"a/View.swift": "",
		"b/View.swift": "",
	})

	stdout, _, code := p.run("build", p.manifest(), "--format", "json")
	assert.Equal(t, ExitCommandError, code)

	var resp Envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DUPLICATE_OUTPUT", resp.Error.Code)
}

func TestBuild_Incremental(t *testing.T) {
	p := newProject(t, incrementalManifest, map[string]string{
		"Sources/a.swift": "provides-top-level: {X: x1}",
		"Sources/b.swift": "provides-top-level: {Y: y1}\ndepends-top-level: [X]",
		"Sources/c.swift": "provides-top-level: {Z: z1}",
	})

	_, _, code := p.run("build", p.manifest())
	require.Equal(t, ExitSuccess, code)
	assert.ElementsMatch(t, []string{
		"Compiling App a.swift",
		"Compiling App b.swift",
		"Compiling App c.swift",
		"Linking App",
	}, p.launcher.Launched())

	t.Run("nothing changed", func(t *testing.T) {
		stdout, _, code := p.run("build", p.manifest())
		require.Equal(t, ExitSuccess, code)
		assert.Empty(t, p.launcher.Launched())
		assert.Contains(t, stdout, "0 jobs run, 0 failed, 4 skipped")
	})

	t.Run("interface change cascades to users", func(t *testing.T) {
		p.write("Sources/a.swift", "provides-top-level: {X: x2}")
		_, _, code := p.run("build", p.manifest(), "-j", "1")
		require.Equal(t, ExitSuccess, code)
		assert.Equal(t, []string{
			"Compiling App a.swift",
			"Compiling App b.swift",
			"Linking App",
		}, p.launcher.Launched())
	})

	t.Run("second run after change is idempotent", func(t *testing.T) {
		_, _, code := p.run("build", p.manifest())
		require.Equal(t, ExitSuccess, code)
		assert.Empty(t, p.launcher.Launched())
	})
}

func TestBuild_IncrementalRetriesFailedCompile(t *testing.T) {
	p := newProject(t, incrementalManifest, map[string]string{
		"Sources/a.swift": "provides-top-level: {X: x1}",
		"Sources/b.swift": "provides-top-level: {Y: y1}",
	})
	p.launcher.FailWith("Compiling App b.swift", 1)
	_, _, code := p.run("build", p.manifest(), "-j", "1")
	require.Equal(t, ExitFailure, code)
	p.launcher.Launched()

	p.launcher.FailWith("Compiling App b.swift", 0)
	_, _, code = p.run("build", p.manifest(), "-j", "1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, []string{"Compiling App b.swift", "Linking App"}, p.launcher.Launched())
}

func TestBuild_ShowIncremental(t *testing.T) {
	p := newProject(t, incrementalManifest, map[string]string{
		"Sources/a.swift": "provides-top-level: {X: x1}",
	})

	_, stderr, code := p.run("build", p.manifest(), "--show-incremental")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stderr, "incremental: Disabling incremental build")
}

func TestBuild_JSONSummary(t *testing.T) {
	p := newProject(t, appManifest, map[string]string{"Sources/main.swift": ""})

	stdout, _, code := p.run("--format", "json", "build", p.manifest())
	require.Equal(t, ExitSuccess, code)

	var resp struct {
		Status string       `json:"status"`
		Data   BuildSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Succeeded)
	assert.Equal(t, 2, resp.Data.Ran)
	require.Len(t, resp.Data.Jobs, 2)
	assert.Equal(t, "compile", resp.Data.Jobs[0].Kind)
	assert.Equal(t, "succeeded", resp.Data.Jobs[0].Status)
}

func TestBuild_InPlaceExecs(t *testing.T) {
	p := newProject(t, `
module:  "App"
mode:    "immediate"
sources: ["main.swift"]
toolchain: frontend: "/usr/bin/swift-frontend"
`, map[string]string{"main.swift": ""})

	_, _, code := p.run("build", p.manifest())
	require.Equal(t, ExitSuccess, code)
	require.Len(t, p.launcher.Execed(), 1)
	inv := p.launcher.Execed()[0]
	assert.Equal(t, "/usr/bin/swift-frontend", inv.Executable)
	assert.True(t, strings.Contains(strings.Join(inv.Args, " "), "-interpret"))
	assert.Empty(t, p.launcher.Launched())
}
