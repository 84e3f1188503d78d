package cerr

import (
	"context"

	"connectrpc.com/connect"
)

// errorInterceptor turns handler errors into Connect errors carrying the
// cerr code, message and violation details. Client calls pass through.
type errorInterceptor struct{}

func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return errorInterceptor{}
}

func (errorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		resp, err := next(ctx, req)
		if req.Spec().IsClient {
			return resp, err
		}
		return resp, ExtractConnectError(ctx, err)
	}
}

func (errorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (errorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return ExtractConnectError(ctx, next(ctx, conn))
	}
}
