package rpc

import (
	"context"
	"net/http"
	"slices"

	"connectrpc.com/connect"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/clog"
)

const (
	ServiceName = "taskcrew.v1.CoordinatorService"

	InvokeProcedure      = "/" + ServiceName + "/Invoke"
	WatchEventsProcedure = "/" + ServiceName + "/WatchEvents"
)

type InvokeRequest struct {
	Role      worker.Role    `json:"role"`
	Operation string         `json:"operation"`
	AgentID   string         `json:"agent_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// WatchEventsRequest filters the stream. Empty fields match everything.
type WatchEventsRequest struct {
	Types      []eventbus.Type `json:"types,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
}

func (r *WatchEventsRequest) match(e *eventbus.Event) bool {
	if len(r.Types) > 0 && !slices.Contains(r.Types, e.Type) {
		return false
	}
	return r.ResourceID == "" || r.ResourceID == e.ResourceID
}

type Server struct {
	service *roleapi.Service
	bus     *eventbus.Bus
}

func NewServer(service *roleapi.Service, bus *eventbus.Bus) *Server {
	return &Server{service: service, bus: bus}
}

// NewHandler mounts the service the way generated connect code does and
// returns the path prefix to register it under.
func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(InvokeProcedure, connect.NewUnaryHandler(InvokeProcedure, s.Invoke, opts...))
	mux.Handle(WatchEventsProcedure, connect.NewServerStreamHandler(WatchEventsProcedure, s.WatchEvents, opts...))
	return "/" + ServiceName + "/", mux
}

// Invoke runs one role operation. The acting worker is taken from the
// request body, falling back to the X-Agent-ID header.
func (s *Server) Invoke(ctx context.Context, req *connect.Request[InvokeRequest]) (*connect.Response[roleapi.Result], error) {
	agentID := req.Msg.AgentID
	if agentID == "" {
		agentID = req.Header().Get(manifest.AgentIDHeader)
	}
	if agentID != "" {
		ctx = roleapi.WithAgentID(ctx, agentID)
	}
	payload := req.Msg.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	res, err := s.service.Invoke(ctx, req.Msg.Role, req.Msg.Operation, payload)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// WatchEvents streams task events until the client goes away. Events
// published while the stream is backed up are dropped.
func (s *Server) WatchEvents(ctx context.Context, req *connect.Request[WatchEventsRequest], stream *connect.ServerStream[eventbus.Event]) error {
	subID, ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(subID)
	clog.AddAttribute(ctx, "subscription", subID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if !req.Msg.match(event) {
				continue
			}
			if err := stream.Send(event); err != nil {
				return err
			}
		}
	}
}
