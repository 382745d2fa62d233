package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// FakeLauncher simulates job processes. A successful job writes each of
// its declared outputs to FS; a compile writes the dependency record
// registered for its primary source as its swiftdeps output.
//
// Safe for concurrent use.
type FakeLauncher struct {
	FS vfs.FileSystem

	// Delay holds every job open so independent jobs overlap.
	Delay time.Duration

	mu       sync.Mutex
	records  map[string]string
	failures map[string]int
	delays   map[string]time.Duration
	current  int
	peak     int
	launched []string
	execed   []*job.Invocation
}

// NewFakeLauncher returns a launcher writing to fs.
func NewFakeLauncher(fs vfs.FileSystem) *FakeLauncher {
	return &FakeLauncher{
		FS:       fs,
		records:  make(map[string]string),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
	}
}

// SetRecord sets the dependency record compiling source produces.
func (l *FakeLauncher) SetRecord(source, record string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[source] = record
}

// FailWith makes every job whose description matches exit with code.
// A zero code clears the failure.
func (l *FakeLauncher) FailWith(description string, code int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code == 0 {
		delete(l.failures, description)
		return
	}
	l.failures[description] = code
}

// SlowDown holds the job with description open for d instead of Delay.
func (l *FakeLauncher) SlowDown(description string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delays[description] = d
}

// Launch implements executor.Launcher.
func (l *FakeLauncher) Launch(_ context.Context, j *job.Job, _ *job.Invocation) (executor.Result, error) {
	l.mu.Lock()
	l.current++
	if l.current > l.peak {
		l.peak = l.current
	}
	desc := j.Description()
	l.launched = append(l.launched, desc)
	code := l.failures[desc]
	delay, ok := l.delays[desc]
	if !ok {
		delay = l.Delay
	}
	l.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.current--

	if code != 0 {
		return executor.Result{ExitCode: code, Output: []byte("error: " + desc + "\n"), Duration: delay}, nil
	}
	for _, out := range j.Outputs {
		content := ""
		if out.Type == job.TypeSwiftDeps {
			for _, src := range j.PrimarySwiftSources() {
				content = l.records[src]
			}
		}
		if err := l.FS.WriteFile(out.File, []byte(content), 0o644); err != nil {
			return executor.Result{}, err
		}
	}
	return executor.Result{Duration: delay}, nil
}

// Exec implements executor.Launcher by recording inv.
func (l *FakeLauncher) Exec(inv *job.Invocation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.execed = append(l.execed, inv)
	return nil
}

// Peak returns the largest number of jobs that were running at once.
func (l *FakeLauncher) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// Launched returns job descriptions in launch order and resets the list.
func (l *FakeLauncher) Launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.launched
	l.launched = nil
	return out
}

// Execed returns the invocations passed to Exec.
func (l *FakeLauncher) Execed() []*job.Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*job.Invocation(nil), l.execed...)
}
