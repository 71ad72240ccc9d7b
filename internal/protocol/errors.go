package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrProtocolViolation   = errors.New("protocol: inbound segment has device source bit")
	ErrCancelled           = errors.New("protocol: transaction cancelled by peer")
	ErrTruncated           = errors.New("protocol: message shorter than service header")
	ErrUnsupported         = errors.New("protocol: unsupported service or message")
	ErrParameterMismatch   = errors.New("protocol: parameter mismatch")
	ErrApplicationRejected = errors.New("protocol: application rejected request")
)

// Error carries the result code that is reported to the peer for a failed
// message together with the cause.
type Error struct {
	Code      ResultCode
	Service   ServiceID
	MessageID uint16
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol: service=%s msg=0x%04x result=%s", e.Service, e.MessageID, e.Code)
	}
	return fmt.Sprintf("protocol: service=%s msg=0x%04x result=%s: %v", e.Service, e.MessageID, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reject builds an Error for msg.
func Reject(msg Message, code ResultCode, err error) *Error {
	return &Error{Code: code, Service: msg.Service, MessageID: msg.MessageID, Err: err}
}

// CodeOf maps err onto the wire result code.
func CodeOf(err error) ResultCode {
	if err == nil {
		return ResultOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	switch {
	case errors.Is(err, ErrCancelled):
		return ResultCancel
	case errors.Is(err, ErrTruncated), errors.Is(err, ErrParameterMismatch):
		return ResultNoData
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrUnsupported):
		return ResultNotSupport
	default:
		return ResultFailed
	}
}
