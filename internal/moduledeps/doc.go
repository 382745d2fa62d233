// Package moduledeps models the module-level dependency graph used for
// explicit module builds.
//
// A node is identified by an ID: a Swift textual module, a prebuilt Swift
// module, a Swift placeholder standing in for a module another target
// builds, or a Clang module. Graphs from separate scans are merged by
// identity into one accumulated map; placeholders must be resolved to a
// concrete Swift node before the map is used for planning.
//
// The JSON form matches the scanner's output: modules are a flat list
// alternating id and info objects, and each id or details value is a
// single-key object naming its variant.
package moduledeps
