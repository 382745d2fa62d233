// Package job describes the subprocess invocations a build is made of.
//
// A Job is immutable once planned: a tool, an argument template, typed
// inputs and typed outputs. The package also owns the two structures that
// turn a flat list of jobs into an executable graph:
//
//   - ProducerMap maps every declared output path to the single job that
//     produces it. Two jobs declaring the same output is a planning error.
//   - Resolver expands an argument template into a concrete command line,
//     spilling long command lines into a response file.
package job
