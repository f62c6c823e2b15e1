package newsletter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novasite/internal/newsletter"
	"novasite/internal/testsupport"
)

// sendServer fakes the content service's newsletter send endpoint and
// records the entry refs it was asked to deliver.
type sendServer struct {
	mu      sync.Mutex
	entries []string
	fail    bool
}

func newSendServer(t *testing.T) (*sendServer, string) {
	t.Helper()
	ss := &sendServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/newsletter/send", r.URL.Path)

		var body struct {
			Entry string `json:"entry"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		ss.mu.Lock()
		defer ss.mu.Unlock()
		if ss.fail {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"message":"smtp relay down"}}`))
			return
		}
		ss.entries = append(ss.entries, body.Entry)
		w.Write([]byte(`{"data":null}`))
	}))
	t.Cleanup(srv.Close)
	return ss, srv.URL
}

func (ss *sendServer) sent() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]string(nil), ss.entries...)
}

func (ss *sendServer) setFail(fail bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.fail = fail
}

func TestEnqueueDedupesPending(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	require.NoError(t, newsletter.Enqueue(dbManager, logger, "blogs", "doc-1"))
	require.NoError(t, newsletter.Enqueue(dbManager, logger, "blogs", "doc-1"))
	require.NoError(t, newsletter.Enqueue(dbManager, logger, "blogs", "doc-2"))

	pending, err := newsletter.Pending(db)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "doc-1", pending[0].EntryRef)
	assert.Equal(t, "doc-2", pending[1].EntryRef)
}

func TestEnqueueRejectsEmptyRef(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	assert.Error(t, newsletter.Enqueue(dbManager, logger, "blogs", ""))
}

func TestEnqueueAfterSentCreatesNewDispatch(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	require.NoError(t, db.Create(&newsletter.Dispatch{
		Collection: "blogs", EntryRef: "doc-1",
		Status: newsletter.StatusSent, CreatedAt: now, SentAt: &now,
	}).Error)

	require.NoError(t, newsletter.Enqueue(dbManager, logger, "blogs", "doc-1"))

	pending, err := newsletter.Pending(db)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDispatchPendingMarksSent(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	ss, url := newSendServer(t)
	client := testsupport.NewTestClient(url)

	require.NoError(t, newsletter.Enqueue(dbManager, logger, "blogs", "doc-1"))
	require.NoError(t, newsletter.Enqueue(dbManager, logger, "webinars", "doc-2"))

	require.NoError(t, newsletter.DispatchPending(context.Background(), dbManager, logger, client))

	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, ss.sent())

	var dispatches []newsletter.Dispatch
	require.NoError(t, db.Order("id ASC").Find(&dispatches).Error)
	require.Len(t, dispatches, 2)
	for _, d := range dispatches {
		assert.Equal(t, newsletter.StatusSent, d.Status)
		assert.Equal(t, 1, d.Attempts)
		require.NotNil(t, d.SentAt)
		assert.Empty(t, d.LastError)
	}
}

func TestDispatchPendingRetriesFailures(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	ss, url := newSendServer(t)
	ss.setFail(true)
	client := testsupport.NewTestClient(url)

	require.NoError(t, newsletter.Enqueue(dbManager, logger, "blogs", "doc-1"))
	require.NoError(t, newsletter.DispatchPending(context.Background(), dbManager, logger, client))

	var d newsletter.Dispatch
	require.NoError(t, db.First(&d).Error)
	assert.Equal(t, newsletter.StatusPending, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Contains(t, d.LastError, "smtp relay down")

	// A later run succeeds and clears the recorded error.
	ss.setFail(false)
	require.NoError(t, newsletter.DispatchPending(context.Background(), dbManager, logger, client))

	require.NoError(t, db.First(&d).Error)
	assert.Equal(t, newsletter.StatusSent, d.Status)
	assert.Equal(t, 2, d.Attempts)
	assert.Empty(t, d.LastError)
}

func TestDispatchAbandonedAfterMaxAttempts(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	ss, url := newSendServer(t)
	ss.setFail(true)
	client := testsupport.NewTestClient(url)

	require.NoError(t, db.Create(&newsletter.Dispatch{
		Collection: "blogs", EntryRef: "doc-stuck",
		Status: newsletter.StatusPending, Attempts: 4, CreatedAt: time.Now().UTC(),
	}).Error)

	require.NoError(t, newsletter.DispatchPending(context.Background(), dbManager, logger, client))

	var d newsletter.Dispatch
	require.NoError(t, db.First(&d).Error)
	assert.Equal(t, newsletter.StatusFailed, d.Status)
	assert.Equal(t, 5, d.Attempts)
}

func TestDispatchPendingNoRowsIsNoop(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	ss, url := newSendServer(t)
	client := testsupport.NewTestClient(url)

	require.NoError(t, newsletter.DispatchPending(context.Background(), dbManager, logger, client))
	assert.Empty(t, ss.sent())
}

func TestPurgeSent(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Create(&newsletter.Dispatch{
		Collection: "blogs", EntryRef: "doc-old",
		Status: newsletter.StatusSent, CreatedAt: old, SentAt: &old,
	}).Error)
	require.NoError(t, db.Create(&newsletter.Dispatch{
		Collection: "blogs", EntryRef: "doc-recent",
		Status: newsletter.StatusSent, CreatedAt: recent, SentAt: &recent,
	}).Error)
	require.NoError(t, db.Create(&newsletter.Dispatch{
		Collection: "blogs", EntryRef: "doc-failed",
		Status: newsletter.StatusFailed, CreatedAt: old,
	}).Error)

	require.NoError(t, newsletter.PurgeSent(dbManager, logger, 30*24*time.Hour))

	var refs []string
	require.NoError(t, db.Model(&newsletter.Dispatch{}).Order("id ASC").Pluck("entry_ref", &refs).Error)
	assert.Equal(t, []string{"doc-recent", "doc-failed"}, refs)
}
