// Package svcerr gives the aggregator a small set of stable error
// codes instead of bare fmt.Errorf strings, so callers (mainly main,
// deciding whether to exit) can branch on what went wrong without
// string matching.
package svcerr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Values are stable and may be
// logged or compared by callers.
type Code string

const (
	// CodeDecodeFailure marks a malformed stream frame. Never fatal.
	CodeDecodeFailure Code = "DECODE_FAILURE"
	// CodeBusRegistration marks a failed stream/mailbox registration
	// at startup. Always fatal.
	CodeBusRegistration Code = "BUS_REGISTRATION_FAILURE"
	// CodePeerQueryFailure marks a failed peer query send or queue
	// operation during resync. Fatal reports false for it; the resync
	// watchdog does not resend queries, it forces completion.
	CodePeerQueryFailure Code = "PEER_QUERY_FAILURE"
	// CodeResyncTimeout marks a resync that never reached Ready before
	// the watchdog fired. Never fatal; the watchdog forces completion.
	CodeResyncTimeout Code = "RESYNC_TIMEOUT"
	// CodeUnexpectedMailbox marks a mailbox message this service does
	// not understand. Never fatal; logged and dropped.
	CodeUnexpectedMailbox Code = "UNEXPECTED_MAILBOX_MESSAGE"
	// CodeNullDelta marks an alert transition the delta table has no
	// entry for. Never fatal; treated as a zero delta.
	CodeNullDelta Code = "INTERESTING_ALERT_NULL_DELTA"
)

// StatsError is the error type every package in this module returns
// for conditions worth naming. It wraps an underlying cause so
// errors.Is/errors.As still work through it.
type StatsError struct {
	Code    Code
	Message string
	Err     error
}

func (e *StatsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StatsError) Unwrap() error {
	return e.Err
}

// New builds a StatsError with no wrapped cause.
func New(code Code, message string) *StatsError {
	return &StatsError{Code: code, Message: message}
}

// Wrap attaches code and message to an existing error.
func Wrap(code Code, message string, err error) *StatsError {
	return &StatsError{Code: code, Message: message, Err: err}
}

// Is reports whether err is a StatsError with the given code.
func Is(err error, code Code) bool {
	var se *StatsError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// Fatal reports whether a code represents a startup failure that
// should stop the process rather than be logged and ignored.
func Fatal(code Code) bool {
	return code == CodeBusRegistration
}
