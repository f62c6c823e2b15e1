// Package v1_test contains route-level tests for the tracking API
package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"novasite/internal/config"
	"novasite/internal/identity"
	"novasite/internal/newsletter"
	"novasite/internal/settings"
	"novasite/internal/testsupport"
	"novasite/internal/tracking"
)

func postJSON(t *testing.T, path string, payload map[string]any, cookies ...*http.Cookie) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0 Safari/537.36")
	req.Header.Set("Sec-Fetch-Site", "same-origin") // Required for browser-only validation
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	return req
}

func queuedCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&tracking.QueuedPageView{}).Count(&count).Error)
	return count
}

func TestTrackingAPI(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	cs := testsupport.NewContentServer(t)

	cfg := config.GetConfig()
	cfg.CMSBaseURL = cs.URL()
	cfg.CMSServiceToken = "hook-secret"

	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("queues a page view and issues identity cookies", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		resp, err := app.Test(postJSON(t, "/x/api/v1/page-views", map[string]any{
			"path": "/pricing", "title": "Pricing",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		names := map[string]bool{}
		for _, ck := range resp.Cookies() {
			names[ck.Name] = true
		}
		assert.True(t, names[identity.VisitorCookieName])
		assert.True(t, names[identity.SessionCookieName])

		assert.Equal(t, int64(1), queuedCount(t, db))
		assert.Equal(t, 0, cs.VisitorHits(), "buffering must not call the content service")
	})

	t.Run("rejects a page view without a path", func(t *testing.T) {
		resp, err := app.Test(postJSON(t, "/x/api/v1/page-views", map[string]any{"title": "No path"}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ignores bot traffic", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := postJSON(t, "/x/api/v1/page-views", map[string]any{"path": "/pricing"})
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, int64(0), queuedCount(t, db))
	})

	t.Run("flush delivers the session buffer and clears it", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		resp, err := app.Test(postJSON(t, "/x/api/v1/page-views", map[string]any{"path": "/a"}))
		require.NoError(t, err)
		cookies := resp.Cookies()

		resp, err = app.Test(postJSON(t, "/x/api/v1/page-views", map[string]any{"path": "/b"}, cookies...))
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Equal(t, int64(2), queuedCount(t, db))

		resp, err = app.Test(postJSON(t, "/x/api/v1/page-views/flush", nil, cookies...))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, 1, cs.VisitorHits())
		assert.Equal(t, int64(0), queuedCount(t, db))

		payload := cs.LastPayload()
		require.NotNil(t, payload)
		assert.Len(t, payload["pageViews"], 2)
	})

	t.Run("flush answers accepted even when delivery fails", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		cs.FailTracking(true)
		defer cs.FailTracking(false)

		resp, err := app.Test(postJSON(t, "/x/api/v1/page-views", map[string]any{"path": "/keep"}))
		require.NoError(t, err)
		cookies := resp.Cookies()

		resp, err = app.Test(postJSON(t, "/x/api/v1/page-views/flush", nil, cookies...))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, int64(1), queuedCount(t, db), "failed flush must retain the buffer")
	})

	t.Run("declined consent stops buffering", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := httptest.NewRequest("POST", "/consent", bytes.NewReader([]byte("decision=decline")))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Sec-Fetch-Site", "same-origin") // Required for browser-only validation
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		var consent *http.Cookie
		for _, ck := range resp.Cookies() {
			if ck.Name == identity.ConsentCookieName {
				consent = ck
			}
		}
		require.NotNil(t, consent)

		resp, err = app.Test(postJSON(t, "/x/api/v1/page-views", map[string]any{"path": "/private"}, consent))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, int64(0), queuedCount(t, db))
	})

	t.Run("excluded IPs are not tracked", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		require.NoError(t, settings.SetupDefaultSettings(db))
		require.NoError(t, settings.UpdateSetting(db, settings.KeyExcludedIPs, "198.51.100.9"))

		req := postJSON(t, "/x/api/v1/page-views", map[string]any{"path": "/office"})
		req.Header.Set("X-Forwarded-For", "198.51.100.9")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, int64(0), queuedCount(t, db))
	})

	t.Run("health reports queue depths", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.CreateQueuedPageView(t, db, "v1", "s1", "/", 0)

		resp, err := app.Test(httptest.NewRequest("GET", "/_health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var health map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, "ok", health["status"])
		assert.EqualValues(t, 1, health["queued_page_views"])
	})

	t.Run("publish hook queues a dispatch", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := postJSON(t, "/hooks/cms/publish", map[string]any{
			"event": "entry.publish",
			"model": "blogs",
			"entry": map[string]any{"id": 5, "documentId": "doc-5"},
		})
		req.Header.Set("Authorization", "Bearer hook-secret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		pending, err := newsletter.Pending(db)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "doc-5", pending[0].EntryRef)
	})

	t.Run("publish hook rejects a bad token", func(t *testing.T) {
		req := postJSON(t, "/hooks/cms/publish", map[string]any{"event": "entry.publish"})
		req.Header.Set("Authorization", "Bearer wrong")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unrelated hook events are ignored", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := postJSON(t, "/hooks/cms/publish", map[string]any{
			"event": "entry.update",
			"model": "blogs",
			"entry": map[string]any{"documentId": "doc-5"},
		})
		req.Header.Set("Authorization", "Bearer hook-secret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		pending, err := newsletter.Pending(db)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
