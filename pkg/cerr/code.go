package cerr

import (
	"net/http"

	"connectrpc.com/connect"
)

// Code mirrors the gRPC status codes so that a single value can be rendered
// as a Connect error, an HTTP status, or a line of shell output.
type Code int

const (
	OK Code = iota
	Canceled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
)

// Codes from Canceled to Unauthenticated share their numeric value with
// connect.Code, so the conversion is a range check.
const lastCode = Unauthenticated

var httpStatus = map[Code]int{
	OK:                 http.StatusOK,
	Canceled:           499,
	InvalidArgument:    http.StatusBadRequest,
	DeadlineExceeded:   http.StatusGatewayTimeout,
	NotFound:           http.StatusNotFound,
	AlreadyExists:      http.StatusConflict,
	PermissionDenied:   http.StatusForbidden,
	ResourceExhausted:  http.StatusTooManyRequests,
	FailedPrecondition: http.StatusPreconditionFailed,
	Aborted:            http.StatusConflict,
	OutOfRange:         http.StatusBadRequest,
	Unimplemented:      http.StatusNotImplemented,
	Unavailable:        http.StatusServiceUnavailable,
	Unauthenticated:    http.StatusUnauthorized,
}

func NewCodeFromConnectError(err error) Code {
	c := Code(connect.CodeOf(err))
	if c <= OK || c > lastCode {
		return Unknown
	}
	return c
}

// String returns the snake_case wire name of the code, e.g. "not_found".
func (c Code) String() string {
	if c == OK {
		return "ok"
	}
	return c.ConnectCode().String()
}

func (c Code) ConnectCode() connect.Code {
	if c == OK {
		return 0
	}
	if c < OK || c > lastCode {
		return connect.CodeUnknown
	}
	return connect.Code(c)
}

// HTTPCode is the status the REST surface answers with. Anything without an
// entry is a server fault.
func (c Code) HTTPCode() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}
