package main

import "errors"

// Exit codes
const (
	ExitSuccess     = 0 // Run finished, including reaching the page cap
	ExitError       = 1 // Run aborted (HTTP error, malformed body, network, retries spent) or output failure
	ExitConfigError = 2 // Invalid flags or configuration
)

// exitError carries the process exit code for an error returned from a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode returns the exit code for err. Errors without an explicit code
// are general errors.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitError
}
