package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/job"
)

// RecordingDelegate records lifecycle events as lines such as
// "started Compiling App a.swift" or "finished Linking App (exit 1)".
type RecordingDelegate struct {
	mu     sync.Mutex
	events []string
}

func (d *RecordingDelegate) record(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

// JobStarted implements executor.Delegate.
func (d *RecordingDelegate) JobStarted(j *job.Job, _ *job.Invocation) {
	d.record("started %s", j.Description())
}

// JobFinished implements executor.Delegate.
func (d *RecordingDelegate) JobFinished(j *job.Job, r executor.Result) {
	if r.Succeeded() {
		d.record("finished %s", j.Description())
		return
	}
	d.record("finished %s (exit %d)", j.Description(), r.ExitCode)
}

// JobSkipped implements executor.Delegate.
func (d *RecordingDelegate) JobSkipped(j *job.Job) {
	d.record("skipped %s", j.Description())
}

// Events returns the recorded events in delivery order.
func (d *RecordingDelegate) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Filter returns the recorded events starting with prefix, with the
// prefix and its following space removed.
func (d *RecordingDelegate) Filter(prefix string) []string {
	var out []string
	for _, e := range d.Events() {
		if len(e) > len(prefix) && e[:len(prefix)] == prefix && e[len(prefix)] == ' ' {
			out = append(out, e[len(prefix)+1:])
		}
	}
	return out
}
