package clog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"
)

type connectConfig struct {
	Filter func(spec connect.Spec) bool
}

type ConnectOption interface {
	apply(*connectConfig)
}

type connectOptionFunc func(*connectConfig)

func (o connectOptionFunc) apply(c *connectConfig) {
	o(c)
}

// WithConnectFilter suppresses the summary record for procedures the filter
// rejects. The attribute bag is still attached to the context.
func WithConnectFilter(filter func(connect.Spec) bool) ConnectOption {
	return connectOptionFunc(func(cfg *connectConfig) {
		cfg.Filter = filter
	})
}

func DefaultConnectHealthCheckUnaryFilter(spec connect.Spec) bool {
	return spec.Procedure != "/grpc.health.v1.Health/Check"
}

// connectLogger writes one record per handled call. Streams additionally log
// when they are opened, since a watch can stay open for hours.
type connectLogger struct {
	cfg connectConfig
}

func NewSlogConnectInterceptor(opts ...ConnectOption) connect.Interceptor {
	l := &connectLogger{}
	for _, opt := range opts {
		opt.apply(&l.cfg)
	}
	return l
}

func (l *connectLogger) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		ctx = ContextWithSlog(ctx)
		AddAttributes(ctx, map[string]any{
			"method":    req.HTTPMethod(),
			"procedure": req.Spec().Procedure,
			"peer":      req.Peer().Addr,
		})
		resp, err := next(ctx, req)
		l.finish(ctx, req.Spec(), start, err)
		return resp, err
	}
}

func (l *connectLogger) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (l *connectLogger) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		ctx = ContextWithSlog(ctx)
		AddAttributes(ctx, map[string]any{
			"procedure":   conn.Spec().Procedure,
			"stream_type": conn.Spec().StreamType.String(),
			"peer":        conn.Peer().Addr,
		})
		slog.DebugContext(ctx, "stream opened")
		err := next(ctx, conn)
		l.finish(ctx, conn.Spec(), start, err)
		return err
	}
}

func (l *connectLogger) finish(ctx context.Context, spec connect.Spec, start time.Time, err error) {
	if l.cfg.Filter != nil && !l.cfg.Filter(spec) {
		return
	}
	AddAttribute(ctx, "duration", time.Since(start))
	if err == nil {
		AddAttribute(ctx, "code", "ok")
		slog.InfoContext(ctx, "finished")
		return
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		connectErr = connect.NewError(connect.CodeUnknown, err)
	}
	AddAttribute(ctx, "code", connectErr.Code().String())
	if details := connectErr.Details(); len(details) > 0 {
		msgs := make([]proto.Message, 0, len(details))
		for _, d := range details {
			v, derr := d.Value()
			if derr != nil {
				slog.WarnContext(ctx, "undecodable error detail", ErrorAttributeKey, derr)
				continue
			}
			msgs = append(msgs, v)
		}
		AddAttribute(ctx, "err_details", msgs)
	}
	slog.Log(ctx, ConnectCodeToLevel(connectErr.Code()).Slog(), connectErr.Message())
}
