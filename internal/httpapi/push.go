package httpapi

import (
	"net/http"

	"github.com/kazz187/taskcrew/pkg/cerr"
)

// subscriptionRequest has the shape of PushSubscription.toJSON() in browsers.
type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type subscriptionResponse struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

func (h *Handler) getVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	key := h.push.PublicKey()
	if key == "" {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(r.Context(), map[string]string{"public_key": key})
}

func (h *Handler) registerSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	sub, err := h.push.Register(ctx, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, subscriptionResponse{ID: sub.ID, Endpoint: sub.Endpoint})
}

func (h *Handler) unregisterSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" {
		req.Endpoint = r.URL.Query().Get("endpoint")
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := h.push.Unregister(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, subscriptionResponse{Endpoint: req.Endpoint})
}
