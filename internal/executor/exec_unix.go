//go:build unix

package executor

import (
	"fmt"
	"os"
	"syscall"

	"github.com/roach88/swiftdriver/internal/job"
)

// Exec implements Launcher.
func (l ProcessLauncher) Exec(inv *job.Invocation) error {
	if l.Dir != "" {
		if err := os.Chdir(l.Dir); err != nil {
			return fmt.Errorf("exec %s: %w", inv.Executable, err)
		}
	}
	argv := append([]string{inv.Executable}, inv.Args...)
	env := append(os.Environ(), inv.Env...)
	if err := syscall.Exec(inv.Executable, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", inv.Executable, err)
	}
	return nil
}
