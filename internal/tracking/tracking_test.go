package tracking_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novasite/internal/testsupport"
	"novasite/internal/tracking"
)

func TestTrackPageViewBuffers(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	visit := testsupport.TestVisit("visitor-1", "session-1")

	first, err := tracking.TrackPageView(dbManager, logger, visit, "/pricing", "Pricing")
	require.NoError(t, err)
	assert.Equal(t, "/pricing", first.Path)
	assert.Equal(t, "Pricing", first.Title)

	_, err = tracking.TrackPageView(dbManager, logger, visit, "/contact", "Contact")
	require.NoError(t, err)

	views, err := tracking.BufferedPageViews(dbManager.GetConnection(), "session-1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "/pricing", views[0].Path)
	assert.Equal(t, "/contact", views[1].Path)
}

func TestBufferIsScopedToSession(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := tracking.TrackPageView(dbManager, logger, testsupport.TestVisit("v1", "s1"), "/a", "")
	require.NoError(t, err)
	_, err = tracking.TrackPageView(dbManager, logger, testsupport.TestVisit("v2", "s2"), "/b", "")
	require.NoError(t, err)

	views, err := tracking.BufferedPageViews(dbManager.GetConnection(), "s1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "/a", views[0].Path)
}

func TestBuildVisitorPayload(t *testing.T) {
	visit := testsupport.TestVisit("visitor-1", "session-1")
	views := []tracking.QueuedPageView{
		{Path: "/", Title: "Home", Timestamp: time.Now().UTC()},
		{Path: "/blog", Title: "Blog", Timestamp: time.Now().UTC()},
	}

	payload := tracking.BuildVisitorPayload(visit, views)
	assert.Equal(t, "visitor-1", payload.VisitorID)
	assert.Equal(t, "session-1", payload.SessionID)
	assert.Equal(t, "Chrome", payload.Browser)
	assert.Equal(t, "Desktop", payload.Device)
	require.Len(t, payload.PageViews, 2)
	assert.Equal(t, "/blog", payload.PageViews[1].Path)
}

func TestSendPageViewsFlushesAndClears(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	cs := testsupport.NewContentServer(t)
	client := testsupport.NewTestClient(cs.URL())

	visit := testsupport.TestVisit("visitor-1", "session-1")
	for _, path := range []string{"/", "/products", "/contact"} {
		_, err := tracking.TrackPageView(dbManager, logger, visit, path, "")
		require.NoError(t, err)
	}

	ok := tracking.SendPageViews(context.Background(), dbManager, logger, client, visit)
	assert.True(t, ok)
	assert.Equal(t, 1, cs.VisitorHits())

	payload := cs.LastPayload()
	require.NotNil(t, payload)
	assert.Equal(t, "visitor-1", payload["visitorId"])
	assert.Len(t, payload["pageViews"], 3)

	views, err := tracking.BufferedPageViews(dbManager.GetConnection(), "session-1")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestSendPageViewsFailureRetainsBuffer(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	cs := testsupport.NewContentServer(t)
	cs.FailTracking(true)
	client := testsupport.NewTestClient(cs.URL())

	visit := testsupport.TestVisit("visitor-1", "session-keep")
	_, err := tracking.TrackPageView(dbManager, logger, visit, "/pricing", "")
	require.NoError(t, err)

	ok := tracking.SendPageViews(context.Background(), dbManager, logger, client, visit)
	assert.False(t, ok)

	views, err := tracking.BufferedPageViews(dbManager.GetConnection(), "session-keep")
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestSendPageViewsEmptyBufferIsNoop(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	cs := testsupport.NewContentServer(t)
	client := testsupport.NewTestClient(cs.URL())

	ok := tracking.SendPageViews(context.Background(), dbManager, logger, client, testsupport.TestVisit("v", "empty"))
	assert.True(t, ok)
	assert.Equal(t, 0, cs.VisitorHits())
}

// A view appended while the flush POST is in flight must survive the cleanup
// that follows a successful delivery.
func TestSendPageViewsKeepsMidFlightAppend(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	visit := testsupport.TestVisit("visitor-1", "session-race")

	_, err := tracking.TrackPageView(dbManager, logger, visit, "/first", "")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := tracking.TrackPageView(dbManager, logger, visit, "/mid-flight", "")
		require.NoError(t, err)
		w.Write([]byte(`{"id":1}`))
	}))
	t.Cleanup(srv.Close)
	client := testsupport.NewTestClient(srv.URL)

	ok := tracking.SendPageViews(context.Background(), dbManager, logger, client, visit)
	assert.True(t, ok)

	views, err := tracking.BufferedPageViews(dbManager.GetConnection(), "session-race")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "/mid-flight", views[0].Path)
}

func TestSessionsWithQueuedViews(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreateQueuedPageView(t, db, "v-old", "s-old", "/landing", 10*time.Minute)
	testsupport.CreateQueuedPageView(t, db, "v-old", "s-old", "/next", 9*time.Minute)
	testsupport.CreateQueuedPageView(t, db, "v-new", "s-new", "/fresh", 0)

	visits, err := tracking.SessionsWithQueuedViews(db, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "s-old", visits[0].SessionID)
	assert.Equal(t, "v-old", visits[0].VisitorID)
}

func TestPurgeStaleQueued(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreateQueuedPageView(t, db, "v1", "s1", "/ancient", 8*24*time.Hour)
	testsupport.CreateQueuedPageView(t, db, "v2", "s2", "/recent", time.Hour)

	purged, err := tracking.PurgeStaleQueued(dbManager, logger, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var count int64
	db.Model(&tracking.QueuedPageView{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
