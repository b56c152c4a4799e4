package cli

import "fmt"

const (
	exitSuccess = 0
	exitConfig  = 1
	exitRuntime = 2
)

// ExitError is an error that carries a specific process exit code.
// RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
