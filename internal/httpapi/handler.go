package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/pushnotification"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
	"github.com/kazz187/taskcrew/pkg/clog"
)

const maxBodyBytes = 1 << 20

// Handler serves the REST surface. Responses are written by the cerr chi
// middleware, so handlers only record a result or an error on the context.
type Handler struct {
	service *roleapi.Service
	push    *pushnotification.Sender
}

// NewHandler builds the REST surface. push may be nil, in which case the
// subscription endpoints are not mounted.
func NewHandler(service *roleapi.Service, push *pushnotification.Sender) *Handler {
	return &Handler{service: service, push: push}
}

// Router returns a chi router serving everything under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewConvertConnectErrorChiMiddleware(),
		)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.Unimplemented, fmt.Sprintf("method %s is not allowed", r.Method), nil)
		})

		r.Get("/manifest", h.getManifest)
		r.Get("/openapi.json", h.getOpenAPI)
		r.Get("/agents/{role}", h.getRole)
		r.Post("/agents/{role}/{operation}", h.invoke)

		if h.push != nil {
			r.Get("/push/vapid-public-key", h.getVAPIDPublicKey)
			r.Post("/push/subscriptions", h.registerSubscription)
			r.Delete("/push/subscriptions", h.unregisterSubscription)
		}
	})
	return r
}

func (h *Handler) getManifest(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), h.service.Manifest())
}

func (h *Handler) getOpenAPI(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), h.service.Manifest().OpenAPI())
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Manifest().Role(worker.Role(chi.URLParam(r, "role")))
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), role)
}

// invoke runs one role operation. The acting worker comes from the
// X-Agent-ID header or the agent_id query parameter.
func (h *Handler) invoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload := map[string]any{}
	if err := decodeBody(w, r, &payload); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	agentID := r.Header.Get(manifest.AgentIDHeader)
	if agentID == "" {
		agentID = r.URL.Query().Get("agent_id")
	}
	if agentID != "" {
		ctx = roleapi.WithAgentID(ctx, agentID)
	}

	res, err := h.service.Invoke(ctx, worker.Role(chi.URLParam(r, "role")), chi.URLParam(r, "operation"), payload)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

// decodeBody reads a JSON object into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), err)
	}
	if err != nil {
		return cerr.NewError(cerr.InvalidArgument, "request body must be a JSON object", err)
	}
	if dec.More() {
		return cerr.NewError(cerr.InvalidArgument, "request body must contain a single JSON object", nil)
	}
	return nil
}
