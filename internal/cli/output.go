package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/manifest"
	"github.com/roach88/swiftdriver/internal/planner"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a job failed or the build was interrupted
	ExitCommandError = 2 // bad manifest, flags or options; nothing ran
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Exit returns an ExitError. err may be nil.
func Exit(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCodeOf returns the exit code carried by err, or ExitFailure.
func ExitCodeOf(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// errorCodes map errors to the machine-readable codes of the JSON
// envelope. The first match wins.
var errorCodes = []func(error) (string, bool){
	func(err error) (string, bool) {
		var pe *planner.PlanningError
		if !errors.As(err, &pe) {
			return "", false
		}
		return string(pe.Code), true
	},
	func(err error) (string, bool) {
		var le *manifest.LoadError
		if !errors.As(err, &le) {
			return "", false
		}
		return le.Code, true
	},
	func(err error) (string, bool) {
		return "JOB_FAILED", executor.IsJobFailedError(err)
	},
	func(err error) (string, bool) {
		return "INPUT_MODIFIED", errors.Is(err, executor.ErrInputModified)
	},
}

// ErrorCode returns the machine-readable code reported for err.
func ErrorCode(err error) string {
	for _, match := range errorCodes {
		if code, ok := match(err); ok {
			return code
		}
	}
	return manifest.ErrCodeGeneric
}

// Envelope wraps every JSON document a command prints.
type Envelope struct {
	Status string     `json:"status"` // "ok" | "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failure inside an Envelope.
type ErrorBody struct {
	Code    string `json:"code"` // "DUPLICATE_OUTPUT", "E201", ...
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Output writes command results as text or as a JSON envelope.
// Progress and diagnostics go to ErrWriter so that JSON on Writer stays
// parseable.
type Output struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// IsJSON reports whether results are printed as JSON envelopes.
func (o *Output) IsJSON() bool { return o.Format == "json" }

// Diagnostics returns the writer for progress and verbose output.
func (o *Output) Diagnostics() io.Writer {
	if o.ErrWriter == nil {
		return o.Writer
	}
	return o.ErrWriter
}

// OK prints a successful result.
func (o *Output) OK(data any) error {
	if o.IsJSON() {
		return o.encode(Envelope{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(o.Writer, data)
	return err
}

// Report prints a failure. Text mode shows details only when verbose.
func (o *Output) Report(code, message string, details any) error {
	if o.IsJSON() {
		return o.encode(Envelope{
			Status: "error",
			Error:  &ErrorBody{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(o.Writer, "Error [%s]: %s\n", code, message)
	if o.Verbose && details != nil {
		fmt.Fprintf(o.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under its code and returns it wrapped in an ExitError.
func (o *Output) Fail(exitCode int, message string, err error) error {
	_ = o.Report(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), nil)
	return Exit(exitCode, message, err)
}

// Debugf prints a diagnostic line when verbose.
func (o *Output) Debugf(format string, args ...any) {
	if o.Verbose {
		fmt.Fprintf(o.Diagnostics(), format+"\n", args...)
	}
}

func (o *Output) encode(env Envelope) error {
	return json.NewEncoder(o.Writer).Encode(env)
}
