// Package store persists incremental build state in SQLite.
//
// One build record is kept per module: the serialized dependency graph,
// the modification time of every input as recorded at build start, and
// the versions that wrote it. A record written by an incompatible graph
// format is still readable; the caller decides to discard it.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers while a build writes its record
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: tolerate overlapping driver processes
//   - foreign_keys=ON: inputs are deleted with their build record
package store
