package resolver

import (
	"fmt"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
)

// ErrorKind classifies resolver failures.
type ErrorKind int

const (
	// KindNoKnownNameServers means no server address is configured.
	KindNoKnownNameServers ErrorKind = iota

	// KindRequestIDInUse means the submitted message id collides with an
	// in-flight task on the same transport.
	KindRequestIDInUse

	// KindRequestTooLong means the encoded message exceeds 65535 bytes.
	KindRequestTooLong

	// KindRequestUnanswered means retries were exhausted without a response.
	KindRequestUnanswered

	// KindResponseBad means the server answered with a non-zero rcode.
	KindResponseBad

	// KindResponseIDUnexpected means a response id matched no in-flight task.
	KindResponseIDUnexpected

	// KindResponseNotExpected means the response opcode does not match the
	// request.
	KindResponseNotExpected

	// KindOther wraps socket-level and OS-level causes.
	KindOther
)

var kindNames = map[ErrorKind]string{
	KindNoKnownNameServers:   "NoKnownNameServers",
	KindRequestIDInUse:       "RequestIDInUse",
	KindRequestTooLong:       "RequestTooLong",
	KindRequestUnanswered:    "RequestUnanswered",
	KindResponseBad:          "ResponseBad",
	KindResponseIDUnexpected: "ResponseIDUnexpected",
	KindResponseNotExpected:  "ResponseNotExpected",
	KindOther:                "Other",
}

// Error is the typed failure produced by the resolver socket.
type Error struct {
	Kind   ErrorKind
	Server string
	Rcode  dnswire.Rcode

	// Response carries the offending message for ResponseBad errors.
	Response *dnswire.Message

	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("resolver: %s", kindNames[e.Kind])
	if e.Server != "" {
		msg += " [" + e.Server + "]"
	}
	if e.Kind == KindResponseBad {
		msg += ": " + e.Rcode.String()
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the resolver error kind, or KindOther for foreign errors.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindOther
}
