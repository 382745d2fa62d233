// Package executor runs a build's jobs.
//
// A single dispatch loop owns all bookkeeping: the producer map, per-job
// state and the cancellation flag. Workers only launch processes and post
// their result back to the loop, so completions racing from several
// workers are applied one at a time. Jobs become eligible once every job
// producing one of their inputs has succeeded. Incremental builds add jobs
// while running as compiles discover them, and add the post-compile jobs
// once compiles reach fixpoint.
//
// Delegate callbacks are delivered in order on a dedicated goroutine.
package executor
