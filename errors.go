package tempalert

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error carries exactly one of them so callers can branch
// with errors.Is.
var (
	ErrRegisterLocked = errors.New("register_locked")
	ErrParameter      = errors.New("parameter_error")
	ErrInvalidRange   = errors.New("invalid_range")
	ErrDeviceInit     = errors.New("device_init_error")
	ErrBus            = errors.New("bus_error")
)

// Error is the result of a failed sensor operation.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapBus attributes a transport failure to op.
func WrapBus(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrBus, Msg: "bus transfer failed", Err: err}
}

// KindOf returns the kind of err or nil when err is not a sensor error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
