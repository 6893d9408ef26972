package clierr

import "errors"

// Type categorizes a CLI-facing error for consistent messaging and exit codes.
type Type string

const (
	Validation Type = "validation"
	Auth       Type = "auth"
	Network    Type = "network"
	NotFound   Type = "not_found"
	Internal   Type = "internal"
)

var exitCodes = map[Type]int{
	Validation: 2,
	Auth:       3,
	Network:    4,
	NotFound:   5,
	Internal:   1,
}

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// ExitCode is the process exit status for this kind of error.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Type]; ok {
		return code
	}
	return 1
}

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// ExitCode returns 0 for nil, the typed code for an *Error anywhere in the
// chain, and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 1
}
