// Package planner turns a resolved option set into a build plan.
//
// PlanBuild forms every job the build may run: explicit module jobs when
// explicit modules are enabled, one compile job per source, and the
// merge-module and link jobs that follow. For incremental builds it also
// constructs the incremental state, which picks the first wave and
// discovers later ones while the build runs.
//
// Planning errors are fatal to the build and carry a code identifying the
// category; nothing is executed when planning fails.
package planner
