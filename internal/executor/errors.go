package executor

import (
	"errors"
	"fmt"

	"github.com/roach88/swiftdriver/internal/job"
)

// ErrInputModified means an input changed after the build recorded it.
var ErrInputModified = errors.New("input modified during build")

// JobFailedError reports a job that exited unsuccessfully or could not be
// launched.
type JobFailedError struct {
	Kind        job.Kind
	Description string
	ExitCode    int
	Signal      int
	Err         error
}

func (e *JobFailedError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Description, e.Err)
	case e.Signal != 0:
		return fmt.Sprintf("%s failed: %s job terminated by signal %d", e.Description, e.Kind, e.Signal)
	}
	return fmt.Sprintf("%s failed: %s job exited with code %d", e.Description, e.Kind, e.ExitCode)
}

func (e *JobFailedError) Unwrap() error {
	return e.Err
}

// IsJobFailedError returns true if err contains a JobFailedError.
func IsJobFailedError(err error) bool {
	var jf *JobFailedError
	return errors.As(err, &jf)
}
