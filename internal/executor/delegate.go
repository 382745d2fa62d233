package executor

import "github.com/roach88/swiftdriver/internal/job"

// Delegate observes job lifecycle events. Calls are made from a single
// goroutine and never concurrently; a job's JobStarted always precedes its
// JobFinished.
type Delegate interface {
	JobStarted(j *job.Job, inv *job.Invocation)
	JobFinished(j *job.Job, r Result)
	JobSkipped(j *job.Job)
}

// NopDelegate ignores every event.
type NopDelegate struct{}

func (NopDelegate) JobStarted(*job.Job, *job.Invocation) {}
func (NopDelegate) JobFinished(*job.Job, Result)         {}
func (NopDelegate) JobSkipped(*job.Job)                  {}

// notifier delivers delegate calls on its own goroutine in send order.
type notifier struct {
	calls chan func(Delegate)
	done  chan struct{}
}

func newNotifier(d Delegate) *notifier {
	if d == nil {
		d = NopDelegate{}
	}
	n := &notifier{
		calls: make(chan func(Delegate), 64),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(n.done)
		for call := range n.calls {
			call(d)
		}
	}()
	return n
}

func (n *notifier) started(j *job.Job, inv *job.Invocation) {
	n.calls <- func(d Delegate) { d.JobStarted(j, inv) }
}

func (n *notifier) finished(j *job.Job, r Result) {
	n.calls <- func(d Delegate) { d.JobFinished(j, r) }
}

func (n *notifier) skipped(j *job.Job) {
	n.calls <- func(d Delegate) { d.JobSkipped(j) }
}

// close waits for every queued call to be delivered.
func (n *notifier) close() {
	close(n.calls)
	<-n.done
}
