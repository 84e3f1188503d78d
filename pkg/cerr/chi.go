package cerr

import (
	"context"
	"net/http"
)

type replyKey struct{}

// reply collects what a chi handler wants written. The middleware renders it
// after the handler returns so handlers never touch the ResponseWriter.
type reply struct {
	status int
	body   any
	err    error
}

func replyFromContext(ctx context.Context) *reply {
	r, _ := ctx.Value(replyKey{}).(*reply)
	return r
}

// SetJSONResponse records a 200 response body. Calls outside the middleware
// are ignored.
func SetJSONResponse(ctx context.Context, response any) {
	SetJSONResponseWithStatus(ctx, http.StatusOK, response)
}

func SetJSONResponseWithStatus(ctx context.Context, status int, response any) {
	if r := replyFromContext(ctx); r != nil {
		r.status = status
		r.body = response
	}
}

// SetJSONError records an error response. It wins over any body set before.
func SetJSONError(ctx context.Context, err error) {
	if r := replyFromContext(ctx); r != nil {
		r.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

func NewConvertConnectErrorChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			r := &reply{status: http.StatusOK}
			ctx := context.WithValue(req.Context(), replyKey{}, r)
			next.ServeHTTP(rw, req.WithContext(ctx))
			ExtractToHTTPResponse(ctx, rw, r)
		})
	}
}
