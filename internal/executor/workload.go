package executor

import (
	"time"

	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/planner"
)

// IncrementalPlanner discovers compile jobs while the build runs.
type IncrementalPlanner interface {
	CollectJobsDiscoveredByCompletion(j *job.Job, succeeded bool) ([]*job.Job, error)
	FixpointReached() bool
	PostCompileJobs() []*job.Job
	SkippedJobs() []*job.Job
}

// Workload is what Run executes.
type Workload struct {
	// Jobs are scheduled before anything runs.
	Jobs []*job.Job

	// InPlace, when set, replaces the current process and is the only job.
	InPlace *job.Job

	// Incremental is nil for builds whose job list is complete up front.
	Incremental IncrementalPlanner

	// ModTimes are the input modification times recorded when planning.
	ModTimes map[string]time.Time
}

// FromPlan returns the workload of a planned build.
func FromPlan(p *planner.Plan) Workload {
	w := Workload{
		Jobs:     p.InitialJobs(),
		InPlace:  p.InPlace,
		ModTimes: p.InputModTimes,
	}
	if p.Incremental != nil {
		w.Incremental = p.Incremental
	}
	if p.InPlace != nil {
		w.Jobs = nil
	}
	return w
}
