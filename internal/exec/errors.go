package exec

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLanguage is returned when no runner is registered for the
// requested language. It fails the whole submission, not a single case.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrDockerUnavailable is returned when the docker daemon cannot be reached.
var ErrDockerUnavailable = errors.New("docker daemon unreachable")

// ErrorKind classifies a failed test invocation.
type ErrorKind string

const (
	// KindCompile covers syntax or type failures surfaced before the
	// candidate function runs.
	KindCompile ErrorKind = "compile"
	// KindRuntime covers a thrown or raised error while the candidate
	// function executes.
	KindRuntime ErrorKind = "runtime"
	// KindTimeout means the invocation exceeded its wall-clock limit and
	// was forcibly terminated.
	KindTimeout ErrorKind = "timeout"
	// KindSandbox covers failures of the execution vehicle itself.
	KindSandbox ErrorKind = "sandbox"
)

// Error is a classified failure of one test invocation. A per-case Error is
// recorded as a failing TestResult; it never aborts sibling cases.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the classification from err, or KindSandbox if err is not
// a classified execution error.
func KindOf(err error) ErrorKind {
	var execErr *Error
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return KindSandbox
}
