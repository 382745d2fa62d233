package harness

// BuildResult is what one build of a scenario did.
type BuildResult struct {
	Name      string
	Succeeded bool

	// Error is the build error, or the planning error code when nothing
	// was executed.
	Error string

	// Events are the delegate events in delivery order, such as
	// "started Compiling App a.swift".
	Events []string

	// Compiled are the compiled source names, in start order.
	Compiled []string
}

// Result is the outcome of running a scenario.
type Result struct {
	Builds []BuildResult

	// Failures are the messages of the assertions that did not hold.
	Failures []string

	// NeedsRecompile are the sources the final build record marks as not
	// compiled, sorted. Nil for non-incremental scenarios.
	NeedsRecompile []string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Build returns the result of the named build.
func (r *Result) Build(name string) (*BuildResult, bool) {
	for i := range r.Builds {
		if r.Builds[i].Name == name {
			return &r.Builds[i], true
		}
	}
	return nil, false
}
