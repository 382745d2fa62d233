// Package harness runs multi-build incremental scenarios against the
// driver.
//
// A scenario declares a module's sources together with the dependency
// record each compile produces, then runs a sequence of builds. Before
// each build the scenario may edit, remove or touch files, delete build
// outputs, or make compiles fail. Every build is planned and executed by
// the real planner and executor with a fake launcher standing in for the
// frontend.
//
// # Scenario Format
//
//	name: cascade
//	description: "An interface change recompiles its users"
//	files:
//	  a.swift: "provides-top-level: {X: x1}"
//	  b.swift: "depends-top-level: [X]"
//	builds:
//	  - name: initial
//	  - name: edit-a
//	    edit:
//	      a.swift: "provides-top-level: {X: x2}"
//	assertions:
//	  - type: compiled
//	    build: edit-a
//	    sources: [a.swift, b.swift]
//
// # Assertion Types
//
//   - compiled: the sources a build compiled, in start order
//   - trace_contains: an event appears in a build's trace
//   - trace_order: events appear in the given order
//   - trace_count: exactly N events start with a prefix
//   - build_result: whether a build succeeded
//   - priors: the sources the final record marks as needing recompilation
//
// # Deterministic Testing
//
// Each scenario gets a fresh in-memory file system whose clock advances
// one second around every edit, fixed build IDs named after the builds,
// and an in-memory SQLite database. Parallelism defaults to one so traces
// are identical across runs and can be compared with golden files.
package harness
