package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the build's trace to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Build    string   // Build the assertion targeted, empty for priors
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Events of the build
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Build != "" {
		fmt.Fprintf(&buf, " (build %s)", e.Build)
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// the failure messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertPriors {
		return assertPriors(result.NeedsRecompile, a)
	}

	build, ok := result.Build(a.Build)
	if !ok {
		return fmt.Errorf("assertion %s: build %q did not run", a.Type, a.Build)
	}
	switch a.Type {
	case AssertCompiled:
		return assertCompiled(build, a)
	case AssertTraceContains:
		return assertTraceContains(build, a)
	case AssertTraceOrder:
		return assertTraceOrder(build, a)
	case AssertTraceCount:
		return assertTraceCount(build, a)
	case AssertBuildResult:
		return assertBuildResult(build, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertCompiled checks the exact sources a build compiled, in start order.
func assertCompiled(build *BuildResult, a Assertion) error {
	if slices.Equal(orEmpty(build.Compiled), orEmpty(a.Sources)) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCompiled,
		Build:    build.Name,
		Expected: fmt.Sprintf("compiled %v", orEmpty(a.Sources)),
		Actual:   fmt.Sprintf("compiled %v", orEmpty(build.Compiled)),
		Trace:    build.Events,
	}
}

// assertTraceContains checks that the build's trace has the event.
func assertTraceContains(build *BuildResult, a Assertion) error {
	if slices.Contains(build.Events, a.Event) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Build:    build.Name,
		Expected: fmt.Sprintf("event %q", a.Event),
		Actual:   "not found in trace",
		Trace:    build.Events,
	}
}

// assertTraceOrder checks that events appear in the specified order.
// Events don't need to be consecutive.
func assertTraceOrder(build *BuildResult, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range build.Events {
		if _, seen := positions[event]; !seen {
			positions[event] = i + 1 // 1-indexed for readability
		}
	}

	for _, event := range a.Events {
		if positions[event] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Build:    build.Name,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", event),
				Trace:    build.Events,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Build:    build.Name,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: build.Events,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events start with Prefix.
func assertTraceCount(build *BuildResult, a Assertion) error {
	count := 0
	for _, event := range build.Events {
		if strings.HasPrefix(event, a.Prefix) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Build:    build.Name,
		Expected: fmt.Sprintf("%d events starting with %q", a.Count, a.Prefix),
		Actual:   fmt.Sprintf("%d events", count),
		Trace:    build.Events,
	}
}

func assertBuildResult(build *BuildResult, a Assertion) error {
	if build.Succeeded == *a.Succeeded {
		return nil
	}
	actual := "succeeded"
	if !build.Succeeded {
		actual = "failed"
		if build.Error != "" {
			actual += ": " + build.Error
		}
	}
	return &AssertionError{
		Type:     AssertBuildResult,
		Build:    build.Name,
		Expected: fmt.Sprintf("succeeded = %t", *a.Succeeded),
		Actual:   actual,
		Trace:    build.Events,
	}
}

// assertPriors checks the sources the final record marks as needing
// recompilation. Order is ignored.
func assertPriors(needs []string, a Assertion) error {
	want := slices.Clone(orEmpty(a.Sources))
	slices.Sort(want)
	if slices.Equal(orEmpty(needs), want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertPriors,
		Expected: fmt.Sprintf("needs recompile %v", want),
		Actual:   fmt.Sprintf("needs recompile %v", orEmpty(needs)),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
