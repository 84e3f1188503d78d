package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskcrew/pkg/storage"
)

func TestCode_Mapping(t *testing.T) {
	tests := []struct {
		code Code
		name string
		http int
	}{
		{InvalidArgument, "invalid_argument", http.StatusBadRequest},
		{NotFound, "not_found", http.StatusNotFound},
		{Aborted, "aborted", http.StatusConflict},
		{AlreadyExists, "already_exists", http.StatusConflict},
		{PermissionDenied, "permission_denied", http.StatusForbidden},
		{ResourceExhausted, "resource_exhausted", http.StatusTooManyRequests},
		{FailedPrecondition, "failed_precondition", http.StatusPreconditionFailed},
		{Unimplemented, "unimplemented", http.StatusNotImplemented},
		{OK, "ok", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.code.String())
			assert.Equal(t, tt.http, tt.code.HTTPCode())
		})
	}
}

func TestError_DetailsRoundTripThroughConnect(t *testing.T) {
	e := NewError(InvalidArgument, "invalid request", nil)
	_ = e.AddDetailMessageWithCode("title is required", "title.required")
	_ = e.AddDetailMessage("priority must be between 1 and 5")

	back := FromConnectError(e.ConnectError())
	assert.Equal(t, InvalidArgument, back.Code)
	assert.Equal(t, "invalid request", back.Msg)
	assert.Equal(t, []string{"title is required", "priority must be between 1 and 5"}, back.DetailMessages())
}

func TestFromConnectError_ForeignError(t *testing.T) {
	back := FromConnectError(connect.NewError(connect.CodeNotFound, errors.New("task T-9 not found")))
	assert.Equal(t, NotFound, back.Code)
	assert.Equal(t, "task T-9 not found", back.Msg)
	assert.Nil(t, FromConnectError(nil))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("assign: %w", NewError(ResourceExhausted, "no capacity", nil))
	assert.Equal(t, ResourceExhausted, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, ResourceExhausted))
	assert.Equal(t, Unknown, CodeOf(errors.New("boom")))
	assert.Equal(t, OK, CodeOf(nil))
}

func TestError_StackOnlyForServerErrors(t *testing.T) {
	assert.NotEmpty(t, NewError(Internal, "server error", nil).Stack)
	assert.Empty(t, NewError(NotFound, "task not found", nil).Stack)
}

func TestWrapStorageReadError(t *testing.T) {
	notFound := WrapStorageReadError("snapshot", fmt.Errorf("snapshots/latest.yaml: %w", storage.ErrNotFound))
	assert.True(t, IsCode(notFound, NotFound))
	assert.ErrorIs(t, notFound, storage.ErrNotFound)
	assert.Equal(t, "[not_found] snapshot not found: snapshots/latest.yaml: not found", notFound.Error())

	other := WrapStorageReadError("snapshot", errors.New("disk on fire"))
	assert.True(t, IsCode(other, Internal))
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/manifest", nil)
	NewConvertConnectErrorChiMiddleware()(h).ServeHTTP(rec, req)
	return rec
}

func TestChiMiddleware_Response(t *testing.T) {
	rec := serve(t, func(_ http.ResponseWriter, r *http.Request) {
		SetJSONResponse(r.Context(), map[string]string{"id": "T-1"})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"T-1"}`, rec.Body.String())
}

func TestChiMiddleware_ResponseStatus(t *testing.T) {
	rec := serve(t, func(_ http.ResponseWriter, r *http.Request) {
		SetJSONResponseWithStatus(r.Context(), http.StatusCreated, map[string]string{"id": "S-1"})
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"S-1"}`, rec.Body.String())
}

func TestChiMiddleware_Error(t *testing.T) {
	rec := serve(t, func(_ http.ResponseWriter, r *http.Request) {
		e := NewError(InvalidArgument, "invalid request", errors.New("hidden"))
		_ = e.AddDetailMessageWithCode("title is required", "title.required")
		SetJSONError(r.Context(), e)
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_argument", body["code"])
	assert.Equal(t, "invalid request", body["message"])
	assert.Equal(t, []any{"title is required"}, body["details"])
	assert.NotContains(t, rec.Body.String(), "hidden")
}

func TestChiMiddleware_UnknownAndCanceled(t *testing.T) {
	rec := serve(t, func(_ http.ResponseWriter, r *http.Request) {
		SetJSONError(r.Context(), errors.New("boom"))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":"unknown","message":"unknown error"}`, rec.Body.String())

	rec = serve(t, func(_ http.ResponseWriter, r *http.Request) {
		SetNewJSONError(r.Context(), Internal, "server error", context.Canceled)
	})
	assert.Equal(t, 499, rec.Code)
	assert.JSONEq(t, `{"code":"canceled","message":"connection closed"}`, rec.Body.String())
}

func TestSetJSONResponse_WithoutMiddleware(t *testing.T) {
	assert.NotPanics(t, func() {
		SetJSONResponse(context.Background(), "ignored")
		SetJSONError(context.Background(), errors.New("ignored"))
	})
}
