package match

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrInvalidParameters
	ErrNotFound
	ErrForbidden
	ErrInvalidState
	ErrAlreadyStarted
	ErrSelfJoin
	ErrFull
	ErrNoOpponent
	ErrInvalidProblem
	ErrAlreadySolved
	ErrVerificationFailed
	ErrUpstreamUnavailable
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidParameters:
		return "invalid_parameters"
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrInvalidState:
		return "invalid_state"
	case ErrAlreadyStarted:
		return "already_started"
	case ErrSelfJoin:
		return "self_join"
	case ErrFull:
		return "full"
	case ErrNoOpponent:
		return "no_opponent"
	case ErrInvalidProblem:
		return "invalid_problem"
	case ErrAlreadySolved:
		return "already_solved"
	case ErrVerificationFailed:
		return "verification_failed"
	case ErrUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

// Error is the kind of failure surfaced to the requesting participant. All
// such errors are recoverable at the caller, none of them crash the
// orchestrator.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("match error %v: %v", e.Code, e.Message)
}

var _ error = (*Error)(nil)

func newError(code ErrorCode, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func MatchesError(err error, code ErrorCode) bool {
	var mErr *Error
	return errors.As(err, &mErr) && mErr.Code == code
}
