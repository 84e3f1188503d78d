package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/worker"
)

// Client talks to a running daemon. It satisfies the shell's Invoker, so
// the command surface works the same in-process and remotely.
type Client struct {
	invoke *connect.Client[InvokeRequest, roleapi.Result]
	watch  *connect.Client[WatchEventsRequest, eventbus.Event]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		invoke: connect.NewClient[InvokeRequest, roleapi.Result](httpClient, baseURL+InvokeProcedure, opts...),
		watch:  connect.NewClient[WatchEventsRequest, eventbus.Event](httpClient, baseURL+WatchEventsProcedure, opts...),
	}
}

func (c *Client) Invoke(ctx context.Context, role worker.Role, operation string, payload map[string]any) (*roleapi.Result, error) {
	req := connect.NewRequest(&InvokeRequest{Role: role, Operation: operation, Payload: payload})
	if id := roleapi.AgentIDFromContext(ctx); id != "" {
		req.Header().Set(manifest.AgentIDHeader, id)
	}
	resp, err := c.invoke.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Watch calls fn for every streamed event until ctx ends, the stream fails
// or fn returns an error.
func (c *Client) Watch(ctx context.Context, filter WatchEventsRequest, fn func(*eventbus.Event) error) error {
	stream, err := c.watch.CallServerStream(ctx, connect.NewRequest(&filter))
	if err != nil {
		return err
	}
	defer stream.Close()
	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
