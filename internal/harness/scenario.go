package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/roach88/swiftdriver/internal/planner"
)

// Scenario defines a multi-build test scenario.
// A scenario declares a module's sources and the dependency record each
// compile produces, then runs a sequence of builds against an in-memory
// file system, asserting on what each build ran.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description says what behavior the scenario pins down.
	Description string `yaml:"description"`

	// Module is the module name. Defaults to "App".
	Module string `yaml:"module,omitempty"`

	// Incremental enables incremental builds. Defaults to true.
	Incremental *bool `yaml:"incremental,omitempty"`

	EmitModule bool   `yaml:"emit_module,omitempty"`
	OutputKind string `yaml:"output_kind,omitempty"`

	// Parallelism caps concurrent jobs. Defaults to 1 so traces are
	// deterministic.
	Parallelism int `yaml:"parallelism,omitempty"`

	// ContinueAfterErrors keeps scheduling independent jobs after a failure.
	ContinueAfterErrors bool `yaml:"continue_after_errors,omitempty"`

	// Files maps source names to the dependency record compiling them
	// produces.
	Files map[string]string `yaml:"files"`

	// Externals are files outside the module that records may depend on.
	Externals []string `yaml:"externals,omitempty"`

	// Builds run in order against the same file system and state store.
	Builds []BuildStep `yaml:"builds"`

	// Assertions validate the builds' traces and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// BuildStep describes the changes made before one build.
type BuildStep struct {
	// Name identifies the build in assertions and golden traces.
	Name string `yaml:"name"`

	// Edit adds or modifies sources, setting their new records.
	Edit map[string]string `yaml:"edit,omitempty"`

	// Remove deletes sources from the module.
	Remove []string `yaml:"remove,omitempty"`

	// Touch bumps the modification time of external dependencies.
	Touch []string `yaml:"touch,omitempty"`

	// DeleteOutputs removes files from the build directory.
	DeleteOutputs []string `yaml:"delete_outputs,omitempty"`

	// Fail lists sources whose compile exits non-zero in this build.
	Fail []string `yaml:"fail,omitempty"`

	// FrontendFlags replaces the frontend flags from this build on. A
	// change invalidates recorded state.
	FrontendFlags []string `yaml:"frontend_flags,omitempty"`
}

// Assertion validates one build's trace or the final recorded state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Build names the build (all types except priors).
	Build string `yaml:"build,omitempty"`

	// Sources are the expected sources (compiled, priors).
	Sources []string `yaml:"sources,omitempty"`

	// Event is the expected event (trace_contains).
	Event string `yaml:"event,omitempty"`

	// Events is the expected event order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Prefix selects events to count (trace_count).
	Prefix string `yaml:"prefix,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Succeeded is the expected result (build_result).
	Succeeded *bool `yaml:"succeeded,omitempty"`
}

const (
	AssertCompiled      = "compiled"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertBuildResult   = "build_result"
	AssertPriors        = "priors"
)

// LoadScenario loads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario document, fills in defaults and
// validates it. Unknown fields are errors.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	s := new(Scenario)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return s, nil
}

// LoadScenarios loads every *.yaml scenario under dir, sorted by path.
// Scenario names must be unique because they name golden files.
func LoadScenarios(dir string) ([]*Scenario, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.yaml", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}
	slices.Sort(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	owner := make(map[string]string, len(matches))
	for _, m := range matches {
		s, err := LoadScenario(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		if prev, taken := owner[s.Name]; taken {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", m, s.Name, prev)
		}
		owner[s.Name] = m
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (s *Scenario) applyDefaults() {
	if s.Module == "" {
		s.Module = "App"
	}
	if s.Incremental == nil {
		on := true
		s.Incremental = &on
	}
	if s.OutputKind == "" {
		s.OutputKind = string(planner.OutputExecutable)
	}
	if s.Parallelism == 0 {
		s.Parallelism = 1
	}
}

func (s *Scenario) validate() error {
	required := []struct {
		field   string
		present bool
	}{
		{"name", s.Name != ""},
		{"description", s.Description != ""},
		{"files", len(s.Files) > 0},
		{"builds", len(s.Builds) > 0},
		{"assertions", len(s.Assertions) > 0},
	}
	for _, r := range required {
		if !r.present {
			return fmt.Errorf("%s: required", r.field)
		}
	}
	if s.Parallelism < 0 {
		return fmt.Errorf("parallelism: must be positive, got %d", s.Parallelism)
	}

	for name := range s.Files {
		if err := checkSourceName(name); err != nil {
			return fmt.Errorf("files: %w", err)
		}
	}
	for i, ext := range s.Externals {
		if !filepath.IsAbs(ext) {
			return fmt.Errorf("externals[%d]: %q is not an absolute path", i, ext)
		}
	}

	builds := make(map[string]bool, len(s.Builds))
	for i, b := range s.Builds {
		if err := s.checkBuild(b, builds); err != nil {
			return fmt.Errorf("builds[%d]: %w", i, err)
		}
		builds[b.Name] = true
	}

	for i := range s.Assertions {
		if err := checkAssertion(&s.Assertions[i], builds); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *Scenario) checkBuild(b BuildStep, seen map[string]bool) error {
	switch {
	case b.Name == "":
		return fmt.Errorf("name: required")
	case seen[b.Name]:
		return fmt.Errorf("duplicate build name %q", b.Name)
	}
	for name := range b.Edit {
		if err := checkSourceName(name); err != nil {
			return fmt.Errorf("edit: %w", err)
		}
	}
	for _, ext := range b.Touch {
		if !slices.Contains(s.Externals, ext) {
			return fmt.Errorf("touch: %q is not a declared external", ext)
		}
	}
	return nil
}

func checkSourceName(name string) error {
	if name == "" || filepath.IsAbs(name) || !strings.HasSuffix(name, ".swift") {
		return fmt.Errorf("source %q must be a relative .swift path", name)
	}
	return nil
}

// assertionFields checks the fields each assertion type needs.
var assertionFields = map[string]func(*Assertion) error{
	AssertCompiled: func(*Assertion) error { return nil },
	AssertPriors:   func(*Assertion) error { return nil },
	AssertTraceContains: func(a *Assertion) error {
		return needField("event", a.Event != "")
	},
	AssertTraceOrder: func(a *Assertion) error {
		return needField("events", len(a.Events) > 0)
	},
	AssertTraceCount: func(a *Assertion) error {
		if a.Count < 0 {
			return fmt.Errorf("count: must be non-negative, got %d", a.Count)
		}
		return needField("prefix", a.Prefix != "")
	},
	AssertBuildResult: func(a *Assertion) error {
		return needField("succeeded", a.Succeeded != nil)
	},
}

func checkAssertion(a *Assertion, builds map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("type: required")
	}
	check, ok := assertionFields[a.Type]
	if !ok {
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Type != AssertPriors && !builds[a.Build] {
		return fmt.Errorf("unknown build %q", a.Build)
	}
	if err := check(a); err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	return nil
}

func needField(name string, present bool) error {
	if !present {
		return fmt.Errorf("%s: required", name)
	}
	return nil
}
