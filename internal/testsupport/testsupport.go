package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"novasite/internal"
	"novasite/internal/cms"
	"novasite/internal/config"
	"novasite/internal/newsletter"
	"novasite/internal/settings"
	"novasite/internal/tracking"
)

// SessionCookieName is the expected cookie name for admin session cookies in
// tests. This should match the pattern used in routes.go: cfg.AppName + "_session"
const SessionCookieName = "novasite_session"

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with novasite's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all novasite models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&tracking.QueuedPageView{},
		&newsletter.Dispatch{},
		&settings.Setting{},
	}
}

// SetupTestDB creates a test database with all novasite models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set NOVASITE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanTables cleans specific tables or all tables if none specified
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		CleanAllTables(db)
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// NewTestClient builds a Content API client pointed at a test server with a
// pre-authenticated service session.
func NewTestClient(baseURL string) *cms.Client {
	session := cms.NewSession("test-token", time.Now().Add(time.Hour))
	return cms.NewClient(baseURL, 3*time.Second, session, GetLogger())
}

// CreateQueuedPageView seeds one buffered navigation event for a session
func CreateQueuedPageView(t *testing.T, db *gorm.DB, visitorID, sessionID, path string, age time.Duration) tracking.QueuedPageView {
	t.Helper()

	row := tracking.QueuedPageView{
		SessionID: sessionID,
		VisitorID: visitorID,
		Path:      path,
		Title:     "Page " + path,
		Timestamp: time.Now().UTC().Add(-age),
		CreatedAt: time.Now().UTC().Add(-age),
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

// TestVisit returns a Visit for the given identifiers with browser-shaped
// request metadata filled in.
func TestVisit(visitorID, sessionID string) tracking.Visit {
	return tracking.Visit{
		VisitorID:   visitorID,
		SessionID:   sessionID,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0",
		Referrer:    "https://duckduckgo.com/",
		LandingPath: "/",
		IPAddress:   "203.0.113.10",
	}
}

// ContentServer is an in-memory stand-in for the headless Content API. It
// serves collections from a mutable map and records write traffic so tests
// can assert on what the site sent upstream.
type ContentServer struct {
	Server *httptest.Server

	mu          sync.Mutex
	collections map[string][]map[string]any
	visitorHits int
	lastPayload map[string]any
	failTrack   bool
	nextID      int
}

// NewContentServer starts a fake Content API. Callers own the returned
// server's lifecycle via t.Cleanup.
func NewContentServer(t *testing.T) *ContentServer {
	t.Helper()

	cs := &ContentServer{
		collections: make(map[string][]map[string]any),
		nextID:      1000,
	}
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.Server.Close)
	return cs
}

// URL returns the fake Content API base URL
func (cs *ContentServer) URL() string {
	return cs.Server.URL
}

// Seed replaces the entries of a collection
func (cs *ContentServer) Seed(collection string, entries []map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.collections[collection] = entries
}

// VisitorHits reports how many tracking POSTs the server accepted
func (cs *ContentServer) VisitorHits() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.visitorHits
}

// LastPayload returns the body of the most recent write request
func (cs *ContentServer) LastPayload() map[string]any {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.lastPayload
}

// FailTracking makes subsequent tracking POSTs answer 503
func (cs *ContentServer) FailTracking(fail bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.failTrack = fail
}

func (cs *ContentServer) handle(w http.ResponseWriter, r *http.Request) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/")

	switch {
	case r.Method == http.MethodPost && path == "visitors":
		if cs.failTrack {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		cs.visitorHits++
		var payload map[string]any
		decodeBody(r, &payload)
		cs.lastPayload = payload
		writeJSON(w, http.StatusOK, map[string]any{"received": true})

	case r.Method == http.MethodPost && path == "auth/local":
		var creds map[string]any
		decodeBody(r, &creds)
		if creds["password"] == "wrong" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{"message": "Invalid identifier or password"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jwt":  "test-jwt",
			"user": map[string]any{"id": 1, "email": creds["identifier"]},
		})

	case r.Method == http.MethodPost && path == "upload":
		cs.nextID++
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": cs.nextID, "url": fmt.Sprintf("/uploads/%d.bin", cs.nextID)},
		})

	default:
		cs.handleCollection(w, r, path)
	}
}

func (cs *ContentServer) handleCollection(w http.ResponseWriter, r *http.Request, path string) {
	collection, ref, _ := strings.Cut(path, "/")
	entries := cs.collections[collection]

	switch r.Method {
	case http.MethodGet:
		if ref == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": entries,
				"meta": map[string]any{"pagination": map[string]any{
					"page": 1, "pageSize": 25, "pageCount": 1, "total": len(entries),
				}},
			})
			return
		}
		if entry, ok := cs.findEntry(collection, ref); ok {
			writeJSON(w, http.StatusOK, map[string]any{"data": entry})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"message": "Not Found"},
		})

	case http.MethodPost:
		var body map[string]any
		decodeBody(r, &body)
		cs.lastPayload = body

		fields, _ := body["data"].(map[string]any)
		entry := map[string]any{}
		for k, v := range fields {
			entry[k] = v
		}
		cs.nextID++
		entry["id"] = cs.nextID
		entry["documentId"] = fmt.Sprintf("doc-%d", cs.nextID)
		cs.collections[collection] = append(entries, entry)
		writeJSON(w, http.StatusOK, map[string]any{"data": entry})

	case http.MethodPut:
		var body map[string]any
		decodeBody(r, &body)
		cs.lastPayload = body

		entry, ok := cs.findEntry(collection, ref)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"message": "Not Found"},
			})
			return
		}
		fields, _ := body["data"].(map[string]any)
		for k, v := range fields {
			entry[k] = v
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": entry})

	case http.MethodDelete:
		kept := entries[:0]
		found := false
		for _, e := range entries {
			if entryMatches(e, ref) {
				found = true
				continue
			}
			kept = append(kept, e)
		}
		cs.collections[collection] = kept
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"message": "Not Found"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (cs *ContentServer) findEntry(collection, ref string) (map[string]any, bool) {
	for _, e := range cs.collections[collection] {
		if entryMatches(e, ref) {
			return e, true
		}
	}
	return nil, false
}

func entryMatches(entry map[string]any, ref string) bool {
	if doc, ok := entry["documentId"].(string); ok && doc == ref {
		return true
	}
	switch id := entry["id"].(type) {
	case int:
		return fmt.Sprintf("%d", id) == ref
	case float64:
		return fmt.Sprintf("%d", int64(id)) == ref
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, out any) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}
	json.Unmarshal(data, out)
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test
	appConfig.PublicDirectory = "../../web"

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
