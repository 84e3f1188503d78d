package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/taskcrew/pkg/clog"
)

type Error struct {
	Code    Code
	Msg     string          // message returned to the caller together with Code
	Err     error           // underlying error, logged but never returned
	Stack   string          // stack trace, captured for error-level codes only
	Details []proto.Message // structured details returned to the caller
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func NewErrorWithDetails(code Code, msg string, underlying error, details []proto.Message) *Error {
	err := NewError(code, msg, underlying)
	err.Details = details
	return err
}

func (e *Error) AddDetailError(err proto.Message) {
	e.Details = append(e.Details, err)
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) AddDetailMessage(msg string) error {
	protoMsg := validate.Violation{
		Message: &msg,
	}
	e.Details = append(e.Details, &protoMsg)
	return e
}

func (e *Error) AddDetailMessageWithCode(msg string, code string) error {
	protoMsg := validate.Violation{
		Message: &msg,
		RuleId:  &code,
	}
	e.Details = append(e.Details, &protoMsg)
	return e
}

// DetailMessages returns the human readable text of every violation detail.
func (e *Error) DetailMessages() []string {
	var msgs []string
	for _, d := range e.Details {
		if v, ok := d.(*validate.Violation); ok && v.GetMessage() != "" {
			msgs = append(msgs, v.GetMessage())
		}
	}
	return msgs
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	for _, detailMsg := range e.Details {
		detail, err := connect.NewErrorDetail(detailMsg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}

// FromConnectError rebuilds an *Error from an error returned by a Connect
// client, keeping violation details.
func FromConnectError(err error) *Error {
	if err == nil {
		return nil
	}
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr
	}
	e := &Error{Code: NewCodeFromConnectError(err), Msg: err.Error(), Err: err}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		e.Msg = connectErr.Message()
		for _, d := range connectErr.Details() {
			if v, derr := d.Value(); derr == nil {
				e.Details = append(e.Details, v)
			}
		}
	}
	return e
}

func ExtractConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if isCanceled(err) {
		return NewError(Canceled, "connection closed", err).ConnectError()
	}

	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Stack != "" {
			clog.AddStack(ctx, cerr.Stack)
		}
		return cerr.ConnectError()
	}
	return NewError(Unknown, "unknown error", err).ConnectError()
}

// isCanceled reports whether err only says the caller went away.
func isCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled"
}

type httpError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func ExtractToHTTPResponse(ctx context.Context, rw http.ResponseWriter, r *reply) {
	if r.err == nil {
		writeJSON(ctx, rw, r.status, r.body)
		return
	}
	if isCanceled(r.err) {
		writeJSONError(ctx, rw, NewError(Canceled, "connection closed", r.err))
		return
	}

	clog.AddError(ctx, r.err)
	var cErr *Error
	if errors.As(r.err, &cErr) {
		if cErr.Stack != "" {
			clog.AddStack(ctx, cErr.Stack)
		}
		writeJSONError(ctx, rw, cErr)
		return
	}
	writeJSONError(ctx, rw, NewError(Unknown, "unknown error", r.err))
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		writeJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

func writeJSONError(ctx context.Context, rw http.ResponseWriter, origErr *Error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	body := httpError{
		Code:    origErr.Code.String(),
		Message: origErr.Msg,
		Details: origErr.DetailMessages(),
	}
	if err := enc.Encode(body); err != nil {
		buf = bytes.NewBufferString(`{"code":"internal","message":"server error"}`)
		origErr.Err = errors.Join(origErr.Err, err)
		clog.AddError(ctx, origErr)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(origErr.Code.HTTPCode())
	if _, err := rw.Write(buf.Bytes()); err != nil {
		origErr.Err = errors.Join(origErr.Err, err)
		clog.AddError(ctx, origErr)
	}
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, Unknown for foreign errors and OK
// for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return Unknown
}
