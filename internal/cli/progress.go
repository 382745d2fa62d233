package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/job"
)

// JobReport is one job in a build summary.
type JobReport struct {
	Description string  `json:"description"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"` // "succeeded" | "failed" | "skipped"
	ExitCode    int     `json:"exit_code,omitempty"`
	Signal      int     `json:"signal,omitempty"`
	Seconds     float64 `json:"seconds,omitempty"`
}

// progress prints a line per started job and collects the summary.
// It is only called from the executor's delegate goroutine.
type progress struct {
	w       io.Writer // nil in JSON mode
	errW    io.Writer
	verbose bool

	started int
	reports []JobReport
}

func newProgress(f *Output) *progress {
	p := &progress{errW: f.Diagnostics(), verbose: f.Verbose}
	if !f.IsJSON() {
		p.w = f.Writer
	}
	return p
}

func (p *progress) JobStarted(j *job.Job, inv *job.Invocation) {
	p.started++
	if p.w != nil {
		fmt.Fprintf(p.w, "[%d] %s\n", p.started, j.Description())
	}
	if p.verbose {
		fmt.Fprintf(p.errW, "  %s %s\n", inv.Executable, strings.Join(inv.Args, " "))
	}
}

func (p *progress) JobFinished(j *job.Job, r executor.Result) {
	report := JobReport{
		Description: j.Description(),
		Kind:        string(j.Kind),
		Status:      "succeeded",
		Seconds:     r.Duration.Round(time.Millisecond).Seconds(),
	}
	if !r.Succeeded() {
		report.Status = "failed"
		report.ExitCode = r.ExitCode
		report.Signal = r.Signal
		if len(r.Output) > 0 {
			p.errW.Write(r.Output)
		}
		if r.Err != nil {
			fmt.Fprintf(p.errW, "%s: %v\n", j.Description(), r.Err)
		}
	}
	p.reports = append(p.reports, report)
}

func (p *progress) JobSkipped(j *job.Job) {
	p.reports = append(p.reports, JobReport{
		Description: j.Description(),
		Kind:        string(j.Kind),
		Status:      "skipped",
	})
}

// BuildSummary is the result of the build command.
type BuildSummary struct {
	Module    string      `json:"module"`
	Succeeded bool        `json:"succeeded"`
	Ran       int         `json:"ran"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Jobs      []JobReport `json:"jobs"`
}

func (p *progress) summary(module string, succeeded bool) BuildSummary {
	s := BuildSummary{Module: module, Succeeded: succeeded, Jobs: p.reports}
	if s.Jobs == nil {
		s.Jobs = []JobReport{}
	}
	for _, r := range p.reports {
		switch r.Status {
		case "failed":
			s.Failed++
			s.Ran++
		case "skipped":
			s.Skipped++
		default:
			s.Ran++
		}
	}
	return s
}

func (s BuildSummary) String() string {
	state := "succeeded"
	if !s.Succeeded {
		state = "failed"
	}
	return fmt.Sprintf("Build of %s %s: %d jobs run, %d failed, %d skipped", s.Module, state, s.Ran, s.Failed, s.Skipped)
}
