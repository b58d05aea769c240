package sendfile

import (
	"fmt"
	"syscall"
)

// Kind classifies a transfer failure. Kinds satisfy error so they can be used
// as errors.Is targets.
type Kind int

const (
	InvalidArgument Kind = iota + 1
	UnsupportedDescriptor
	UnsupportedFeature
	NotImplemented
	Overflow
	Interrupted
	Fatal
)

var kindNames = [...]string{
	InvalidArgument:       "invalid argument",
	UnsupportedDescriptor: "unsupported descriptor",
	UnsupportedFeature:    "unsupported feature",
	NotImplemented:        "not implemented",
	Overflow:              "overflow",
	Interrupted:           "interrupted",
	Fatal:                 "fatal",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) Error() string { return "sendfile: " + k.String() }

// Error is returned by Transfer. Errno carries the native error code when
// one was involved and is zero otherwise.
type Error struct {
	Op    string
	Kind  Kind
	Errno syscall.Errno
	Msg   string
}

func (e *Error) Error() string {
	s := "sendfile " + e.Op + ": " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Errno != 0 {
		s += fmt.Sprintf(" (%v)", e.Errno)
	}
	return s
}

// Is matches a Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Unwrap exposes the native errno so errors.Is(err, syscall.EPIPE) works.
func (e *Error) Unwrap() error {
	if e.Errno == 0 {
		return nil
	}
	return e.Errno
}

func newError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}
