package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novasite/internal/cms"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func newTestController(t *testing.T, handler http.HandlerFunc, spec Spec) (*Controller, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := cms.NewClient(srv.URL, 3*time.Second, cms.NewSession("", time.Time{}), discardLogger())
	return NewController(client, spec, discardLogger()), srv
}

func blogSpec() Spec {
	return Spec{
		Collection: "blogs",
		Rules: []Rule{
			Required("title", "Title"),
			Required("author", "Author"),
		},
		Upload: &Upload{
			FieldName:         "cover",
			AllowedMIME:       []string{"image/jpeg", "image/png"},
			MaxBytes:          10 << 20,
			OptionalOnFailure: true,
		},
	}
}

func TestValidateCollectsRequiredFieldErrors(t *testing.T) {
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {}, blogSpec())

	errs := f.Validate(map[string]string{"title": "  ", "author": "Ana"})
	require.Len(t, errs, 1)
	assert.Equal(t, "Title is required", errs["title"])

	errs = f.Validate(map[string]string{"title": "Hello", "author": "Ana"})
	assert.Empty(t, errs)
}

func TestRequiredUnlessWaivesConditionalField(t *testing.T) {
	rule := RequiredUnless("location", "Location", "type", "online")

	field, _ := rule(map[string]string{"type": "online"})
	assert.Empty(t, field)

	field, msg := rule(map[string]string{"type": "in-person"})
	assert.Equal(t, "location", field)
	assert.Equal(t, "Location is required", msg)
}

func TestOversizeUploadFailsLocallyWithByteAccurateMessage(t *testing.T) {
	var hits int
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) { hits++ }, blogSpec())

	data := make([]byte, 12<<20)
	_, err := f.SubmitAsset(context.Background(), "big.jpg", "image/jpeg", data)
	require.Error(t, err)

	assert.Equal(t, 0, hits, "precheck violations must not reach the network")
	assert.Equal(t, StateError, f.State())
	assert.Contains(t, f.Err(), "12582912 bytes")
	assert.Contains(t, f.Err(), "10485760 bytes")
}

func TestDisallowedMIMEFailsLocally(t *testing.T) {
	var hits int
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) { hits++ }, blogSpec())

	_, err := f.SubmitAsset(context.Background(), "doc.pdf", "application/pdf", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 0, hits)
	assert.Contains(t, f.Err(), "application/pdf")
}

func TestEditClearsErrorState(t *testing.T) {
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {}, blogSpec())

	_, err := f.SubmitAsset(context.Background(), "doc.pdf", "application/pdf", []byte("x"))
	require.Error(t, err)
	require.Equal(t, StateError, f.State())

	f.Edit()
	assert.Equal(t, StateIdle, f.State())
	assert.Empty(t, f.Err())
}

func TestUploadRejectionProceedsWithWarningWhenOptional(t *testing.T) {
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "upload backend down"}})
	}, blogSpec())

	id, err := f.SubmitAsset(context.Background(), "ok.jpg", "image/jpeg", []byte("img"))
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, StateIdle, f.State())
	assert.NotEmpty(t, f.Warning())
}

func TestUploadRejectionFailsWhenAssetRequired(t *testing.T) {
	spec := blogSpec()
	spec.Upload.OptionalOnFailure = false

	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "file rejected"}})
	}, spec)

	_, err := f.SubmitAsset(context.Background(), "ok.jpg", "image/jpeg", []byte("img"))
	require.Error(t, err)
	assert.Equal(t, StateError, f.State())
	assert.Contains(t, f.Err(), "file rejected")
}

func TestSubmitCreateEmbedsAssetAndReachesSuccess(t *testing.T) {
	var captured map[string]any
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/blogs", r.URL.Path)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured = body["data"]
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 7, "attributes": map[string]any{"title": "Hello"}}})
	}, blogSpec())

	record, err := f.Submit(context.Background(), "", map[string]any{"title": "Hello"}, 42)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, f.State())
	assert.Equal(t, uint(7), record.ID())
	assert.EqualValues(t, 42, captured["cover"])
}

func TestSubmitUpdateUsesPutAndRef(t *testing.T) {
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/blogs/doc-9", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 9, "documentId": "doc-9"}})
	}, blogSpec())

	record, err := f.Submit(context.Background(), "doc-9", map[string]any{"title": "Updated"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "doc-9", record.DocumentID())
}

func TestSubmitSurfacesServerErrorVerbatim(t *testing.T) {
	f, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "title must be unique"}})
	}, blogSpec())

	_, err := f.Submit(context.Background(), "", map[string]any{"title": "dup"}, 0)
	require.Error(t, err)
	assert.Equal(t, StateError, f.State())
	assert.True(t, strings.Contains(f.Err(), "title must be unique"))
}
