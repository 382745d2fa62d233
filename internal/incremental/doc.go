// Package incremental decides which compile jobs a build needs.
//
// A State is built once per build from the prior build's record. It
// computes the first wave of compile jobs from changed inputs, changed
// external dependencies and removed inputs. As each compile finishes it
// integrates the fresh dependency record and returns the compile jobs
// newly implicated by what changed. When no compile is outstanding the
// build has reached its fixpoint and the post-compile jobs may run. At
// build end the updated graph and input timestamps are written back.
//
// Missing, corrupt or incompatible priors never fail a build. They
// disable incremental mode and every compile job is scheduled.
package incremental
