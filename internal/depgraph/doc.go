// Package depgraph holds the fine-grained dependency graph used by
// incremental builds.
//
// Every compiled source file yields a dependency record listing the facts
// it provides (declarations, members, dynamic-lookup names) and the facts
// it depends on. The Graph merges all records; given a set of changed
// facts it answers which files must be recompiled.
//
// Storage is arena style. Provide nodes and use edges live in flat slices
// addressed by index, and lookups by fact go through key indexes. A file
// re-integrated with a new record has all of its previous nodes and uses
// tombstoned before the new ones are added, so no stale edge survives.
package depgraph
