package cms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, 100*time.Millisecond, NewSession("svc-token", time.Time{}), discardLogger())
	return client, srv
}

func TestListEnvelopeShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/blogs", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":1,"attributes":{"title":"First"}},{"id":2,"title":"Second"}]}`))
	})

	records, err := client.List(context.Background(), CollectionBlogs, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "First", records[0].String("title"))
	assert.Equal(t, "Second", records[1].String("title"))
}

func TestListBareArrayShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":9,"name":"Ada"}]`))
	})

	records, err := client.List(context.Background(), CollectionUsers, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ada", records[0].String("name"))
}

func TestListPagePagination(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("pagination[page]"))
		assert.Equal(t, "25", r.URL.Query().Get("pagination[pageSize]"))
		w.Write([]byte(`{"data":[{"id":26}],"meta":{"pagination":{"page":2,"pageSize":25,"pageCount":4,"total":100}}}`))
	})

	records, page, err := client.ListPage(context.Background(), CollectionVisitors, 2, 25)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 4, page.PageCount)
	assert.Equal(t, int64(100), page.Total)
}

func TestGetNotFoundExtractsMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"Entry not found"}}`))
	})

	_, err := client.Get(context.Background(), CollectionBlogs, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Entry not found", apiErr.Message)
}

func TestLegacyErrorShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":[{"messages":[{"message":"Email is already taken"}]}]}`))
	})

	_, err := client.Create(context.Background(), CollectionSubscribers, map[string]any{"email": "a@b.c"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Email is already taken", apiErr.Message)
}

func TestAuthErrorFallbackMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{}`))
	})

	_, err := client.List(context.Background(), CollectionInquiries, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsAuth())
	assert.Contains(t, apiErr.Message, "Not authorized")
}

func TestGarbageErrorBodyFallsBack(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html>boom</html>`))
	})

	_, err := client.List(context.Background(), CollectionBlogs, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "The content service returned an unexpected error", apiErr.Message)
}

func TestDeleteAddressesByRef(t *testing.T) {
	var path string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Write([]byte(`{"data":null}`))
	})

	require.NoError(t, client.Delete(context.Background(), CollectionBlogs, "doc-42"))
	assert.Equal(t, "/api/blogs/doc-42", path)
}

func TestCreateWrapsFieldsInData(t *testing.T) {
	var body []byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"data":{"id":5,"documentId":"doc-5","attributes":{"title":"New"}}}`))
	})

	rec, err := client.Create(context.Background(), CollectionBlogs, map[string]any{"title": "New"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"title":"New"}}`, string(body))
	assert.Equal(t, "doc-5", rec.Ref())
	assert.Equal(t, "New", rec.String("title"))
}

func TestLoginStoresToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/local" {
			w.Write([]byte(`{"jwt":"fresh-jwt","user":{"id":1,"email":"admin@example.com"}}`))
			return
		}
		assert.Equal(t, "Bearer fresh-jwt", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[]}`))
	})
	// Start anonymous so Login's token is the one observed afterwards.
	client.Session().Clear()

	result, err := client.Login(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh-jwt", result.JWT)
	assert.Equal(t, "admin@example.com", result.User.String("email"))
	assert.True(t, client.Session().Authenticated())

	_, err = client.List(context.Background(), CollectionInquiries, nil)
	require.NoError(t, err)

	client.Logout()
	assert.False(t, client.Session().Authenticated())
}

func TestLoginFailureSurfacesMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid identifier or password"}}`))
	})

	_, err := client.Login(context.Background(), "admin@example.com", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid identifier or password", apiErr.Message)
}

func TestTrackVisitorSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/visitors", r.URL.Path)
		w.Write([]byte(`{"id":77}`))
	})

	ack, delivered := client.TrackVisitor(context.Background(), VisitorPayload{VisitorID: "v1", SessionID: "s1"})
	assert.True(t, delivered)
	require.NotNil(t, ack)
	assert.Equal(t, uint(77), ack.ID)
}

func TestTrackVisitorTimeoutIsSwallowed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"id":1}`))
	})

	start := time.Now()
	ack, delivered := client.TrackVisitor(context.Background(), VisitorPayload{VisitorID: "v1"})
	assert.False(t, delivered)
	assert.Nil(t, ack)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestTrackVisitorRejectionIsSwallowed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, delivered := client.TrackVisitor(context.Background(), VisitorPayload{VisitorID: "v1"})
	assert.False(t, delivered)
}

func TestTrackVisitorGarbageAckIsStillDelivered(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	ack, delivered := client.TrackVisitor(context.Background(), VisitorPayload{VisitorID: "v1"})
	assert.True(t, delivered)
	require.NotNil(t, ack)
	assert.Zero(t, ack.ID)
}

func TestTrackVisitorUnreachableHost(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 100*time.Millisecond, nil, discardLogger())

	_, delivered := client.TrackVisitor(context.Background(), VisitorPayload{VisitorID: "v1"})
	assert.False(t, delivered)
}

func TestSessionRefreshOnExpiry(t *testing.T) {
	session := NewSession("stale", time.Now().Add(-time.Minute))
	session.WithRefresh(func(ctx context.Context) (string, time.Time, error) {
		return "renewed", time.Now().Add(time.Hour), nil
	})

	assert.Equal(t, "renewed", session.Token(context.Background()))
	// The refreshed token is stored, not re-fetched.
	assert.Equal(t, "renewed", session.Token(context.Background()))
}

func TestSessionRefreshFailureGoesAnonymous(t *testing.T) {
	session := NewSession("stale", time.Now().Add(-time.Minute))
	session.WithRefresh(func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, errors.New("refresh endpoint down")
	})

	assert.Equal(t, "", session.Token(context.Background()))
}
