// Package cms is the client for the external Content API, a headless-CMS
// REST/JSON service holding all persistent marketing content. It attaches
// bearer-token auth when a session token is present, normalizes both known
// response shapes into one canonical Record, and extracts structured error
// messages from failure bodies.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Collection names exposed by the Content API.
const (
	CollectionBlogs           = "blogs"
	CollectionWebinars        = "webinars"
	CollectionEvents          = "events"
	CollectionJobs            = "jobs"
	CollectionResources       = "resources"
	CollectionInquiries       = "inquiries"
	CollectionPartnerRequests = "partner-requests"
	CollectionSubscribers     = "subscriptions"
	CollectionApplications    = "applications"
	CollectionUsers           = "users"
	CollectionVisitors        = "visitors"
)

// Client talks to the Content API. CRUD calls carry no client-enforced
// timeout and rely on the transport default; only the visitor-tracking POST
// is timed out (see tracking.go).
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracking   *http.Client
	session    *Session
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client; used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Content API client rooted at baseURL. The session may
// be empty (anonymous); public reads are tolerated without a token.
func NewClient(baseURL string, trackingTimeout time.Duration, session *Session, logger *slog.Logger, opts ...Option) *Client {
	if session == nil {
		session = NewSession("", time.Time{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tracking:   &http.Client{Timeout: trackingTimeout},
		session:    session,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	// The tracking client shares the transport so tests can intercept both.
	c.tracking = &http.Client{Timeout: trackingTimeout, Transport: c.httpClient.Transport}
	return c
}

// Session returns the session context threaded through this client.
func (c *Client) Session() *Session {
	return c.session
}

// BaseURL returns the configured Content API host.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs a JSON request against the Content API and returns the raw
// response body. Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content api unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, data)
		c.logger.Debug("Content API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message))
		return nil, apiErr
	}

	return data, nil
}

// collectionEnvelope covers both response framings for collection reads:
// {"data": [...], "meta": {...}} and a bare top-level array.
type collectionEnvelope struct {
	Data []any `json:"data"`
	Meta struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

// Pagination describes a server-paginated slice.
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int   `json:"pageCount"`
	Total     int64 `json:"total"`
}

// List fetches the full collection. The API's default sort (commonly
// descending by creation timestamp) is preserved; no local re-sort.
func (c *Client) List(ctx context.Context, collection string, query url.Values) ([]Record, error) {
	path := "/api/" + collection
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	records, _, err := decodeCollection(body)
	return records, err
}

// ListPage fetches one server-paginated slice of a collection. Used for the
// visitors collection, which is too large to pull whole.
func (c *Client) ListPage(ctx context.Context, collection string, page, pageSize int) ([]Record, Pagination, error) {
	query := url.Values{}
	query.Set("pagination[page]", fmt.Sprintf("%d", page))
	query.Set("pagination[pageSize]", fmt.Sprintf("%d", pageSize))

	body, err := c.do(ctx, http.MethodGet, "/api/"+collection+"?"+query.Encode(), nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	return decodeCollection(body)
}

func decodeCollection(body []byte) ([]Record, Pagination, error) {
	var envelope collectionEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return NormalizeList(envelope.Data), envelope.Meta.Pagination, nil
	}

	var bare []any
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, Pagination{}, fmt.Errorf("unexpected collection response shape: %w", err)
	}
	return NormalizeList(bare), Pagination{}, nil
}

// Get fetches a single record by documentId or numeric id.
func (c *Client) Get(ctx context.Context, collection, ref string) (Record, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/"+collection+"/"+url.PathEscape(ref), nil)
	if err != nil {
		return nil, err
	}
	return decodeEntry(body)
}

// Create inserts a new record.
func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (Record, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/"+collection, map[string]any{"data": fields})
	if err != nil {
		return nil, err
	}
	return decodeEntry(body)
}

// Update replaces fields of an existing record. ref should be the documentId
// when the record has one.
func (c *Client) Update(ctx context.Context, collection, ref string, fields map[string]any) (Record, error) {
	body, err := c.do(ctx, http.MethodPut, "/api/"+collection+"/"+url.PathEscape(ref), map[string]any{"data": fields})
	if err != nil {
		return nil, err
	}
	return decodeEntry(body)
}

// Delete removes a record. ref should be the documentId when the record has
// one; the numeric id works but is not stable across republishes.
func (c *Client) Delete(ctx context.Context, collection, ref string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/"+collection+"/"+url.PathEscape(ref), nil)
	return err
}

func decodeEntry(body []byte) (Record, error) {
	if len(body) == 0 {
		return Record{}, nil
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return Normalize(envelope.Data), nil
	}

	var flat map[string]any
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("unexpected entry response shape: %w", err)
	}
	return Normalize(flat), nil
}

// AuthResult is the login response from the identity endpoint.
type AuthResult struct {
	JWT  string
	User Record
}

// Login exchanges credentials at POST /api/auth/local and stores the issued
// token in the client's session.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/auth/local", map[string]any{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		JWT  string         `json:"jwt"`
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unexpected auth response shape: %w", err)
	}
	if decoded.JWT == "" {
		return nil, &APIError{Status: http.StatusUnauthorized, Message: authErrorMessage}
	}

	c.session.Set(decoded.JWT, time.Time{})
	c.logger.Info("Authenticated against content api", slog.String("identifier", identifier))
	return &AuthResult{JWT: decoded.JWT, User: Normalize(decoded.User)}, nil
}

// Logout clears the session token.
func (c *Client) Logout() {
	c.session.Clear()
}

// DownloadResource asks the Content API to count a download of the named
// Resource and returns the asset URL to redirect to.
func (c *Client) DownloadResource(ctx context.Context, slug string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/resources/"+url.PathEscape(slug)+"/download", nil)
	if err != nil {
		return "", err
	}
	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.URL == "" {
		return "", fmt.Errorf("download endpoint returned no asset url")
	}
	return decoded.URL, nil
}

// Unsubscribe removes a newsletter subscription by its opaque token.
func (c *Client) Unsubscribe(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/newsletter/unsubscribe", map[string]any{"token": token})
	return err
}

// SendNewsletter asks the Content API's email extension to deliver the given
// entry to all confirmed subscribers.
func (c *Client) SendNewsletter(ctx context.Context, entryRef string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/newsletter/send", map[string]any{"entry": entryRef})
	return err
}
