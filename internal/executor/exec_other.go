//go:build !unix

package executor

import (
	"errors"

	"github.com/roach88/swiftdriver/internal/job"
)

// Exec implements Launcher.
func (l ProcessLauncher) Exec(inv *job.Invocation) error {
	return errors.New("in-place execution is not supported on this platform")
}
