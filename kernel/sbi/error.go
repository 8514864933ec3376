package sbi

// Error is the status code returned by an SBI call. Codes -1 to -8 are
// defined by the SBI standard; any other non-zero value is kept verbatim so
// that status codes added by future firmware revisions are not lost.
//
// Error values are returned by value and never boxed into an error
// interface below the io.Writer boundary; see asError.
type Error int64

// Success is the status reported by calls that completed.
const Success Error = 0

// Status codes defined by the SBI standard.
const (
	ErrFailed Error = -(iota + 1)
	ErrNotSupported
	ErrInvalidParameter
	ErrDenied
	ErrInvalidAddress
	ErrAlreadyAvailable
	ErrAlreadyStarted
	ErrAlreadyStopped
)

// NewError maps an SBI status code to an Error. Zero maps to Success.
func NewError(code int64) Error {
	return Error(code)
}

// Known returns true if e is one of the status codes defined by the SBI
// standard.
func (e Error) Known() bool {
	return e <= ErrFailed && e >= ErrAlreadyStopped
}

// Code returns the raw status code.
func (e Error) Code() int64 {
	return int64(e)
}

// Error implements the error interface.
func (e Error) Error() string {
	switch e {
	case Success:
		return "success"
	case ErrFailed:
		return "call to SBI failed"
	case ErrNotSupported:
		return "SBI call not implemented or functionality not available"
	case ErrInvalidParameter:
		return "invalid parameter passed"
	case ErrDenied:
		return "SBI implementation denied execution"
	case ErrInvalidAddress:
		return "invalid address passed"
	case ErrAlreadyAvailable:
		return "resource is already available"
	case ErrAlreadyStarted:
		return "resource was already started"
	case ErrAlreadyStopped:
		return "resource was already stopped"
	default:
		return "unknown SBI error code"
	}
}

// errUnknownStatus stands in for status codes that have no sentinel when
// a status crosses into an error interface.
var errUnknownStatus error = Error(-1 << 63)

// asError converts e to an error without allocating: known codes are boxed
// from constants and unknown codes share errUnknownStatus. Success maps to
// nil.
func (e Error) asError() error {
	switch e {
	case Success:
		return nil
	case ErrFailed:
		return ErrFailed
	case ErrNotSupported:
		return ErrNotSupported
	case ErrInvalidParameter:
		return ErrInvalidParameter
	case ErrDenied:
		return ErrDenied
	case ErrInvalidAddress:
		return ErrInvalidAddress
	case ErrAlreadyAvailable:
		return ErrAlreadyAvailable
	case ErrAlreadyStarted:
		return ErrAlreadyStarted
	case ErrAlreadyStopped:
		return ErrAlreadyStopped
	default:
		return errUnknownStatus
	}
}
