package job

import (
	"fmt"
)

// DuplicateOutputError reports two jobs declaring the same output path.
type DuplicateOutputError struct {
	Path   string
	First  *Job
	Second *Job
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("multiple jobs produce %q: %q and %q",
		e.Path, e.First.Description(), e.Second.Description())
}

// ProducerMap maps each output path to the index of the job producing it.
//
// Jobs may be appended while a build is running; every insertion goes
// through the same uniqueness check. ProducerMap is not safe for
// concurrent use; the executor owns it from a single goroutine.
type ProducerMap struct {
	jobs   []*Job
	byPath map[string]int
}

// NewProducerMap indexes jobs by their declared outputs.
func NewProducerMap(jobs []*Job) (*ProducerMap, error) {
	m := &ProducerMap{
		jobs:   make([]*Job, 0, len(jobs)),
		byPath: make(map[string]int),
	}
	for _, j := range jobs {
		if _, err := m.Add(j); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add registers j and returns its index. If any output of j is already
// produced by another job, nothing is registered.
func (m *ProducerMap) Add(j *Job) (int, error) {
	seen := make(map[string]struct{}, len(j.Outputs))
	for _, out := range j.Outputs {
		if idx, ok := m.byPath[out.File]; ok {
			return -1, &DuplicateOutputError{Path: out.File, First: m.jobs[idx], Second: j}
		}
		if _, ok := seen[out.File]; ok {
			return -1, &DuplicateOutputError{Path: out.File, First: j, Second: j}
		}
		seen[out.File] = struct{}{}
	}

	idx := len(m.jobs)
	m.jobs = append(m.jobs, j)
	for _, out := range j.Outputs {
		m.byPath[out.File] = idx
	}
	return idx, nil
}

// Producer returns the index of the job producing path.
func (m *ProducerMap) Producer(path string) (int, bool) {
	idx, ok := m.byPath[path]
	return idx, ok
}

// Dependencies returns the indices of the jobs producing j's inputs, in
// input order and without duplicates. Inputs nobody produces are files
// that already exist.
func (m *ProducerMap) Dependencies(j *Job) []int {
	var deps []int
	seen := make(map[int]struct{})
	for _, in := range j.Inputs {
		idx, ok := m.byPath[in.File]
		if !ok {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		deps = append(deps, idx)
	}
	return deps
}
