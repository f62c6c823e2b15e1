package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// PageView is one buffered client-side navigation event.
type PageView struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// VisitorPayload is the visitor-tracking submission shape.
type VisitorPayload struct {
	VisitorID   string     `json:"visitorId"`
	SessionID   string     `json:"sessionId"`
	UserAgent   string     `json:"userAgent"`
	Referrer    string     `json:"referrer,omitempty"`
	LandingPath string     `json:"landingPath,omitempty"`
	Browser     string     `json:"browser"`
	Device      string     `json:"device"`
	OS          string     `json:"os"`
	Country     string     `json:"country,omitempty"`
	PageViews   []PageView `json:"pageViews,omitempty"`
}

// Ack is the tracking endpoint's acknowledgment.
type Ack struct {
	ID uint `json:"id"`
}

// TrackVisitor POSTs a visitor-tracking payload. This is fire-and-forget
// telemetry: the request carries a short timeout, and every failure mode
// (unreachable host, timeout, non-2xx, garbage body) is swallowed and
// reported as delivered=false. It never returns an error, so a failure here
// can never propagate into the page lifecycle. The worst observable effect
// of a dead backend is an untracked visitor.
func (c *Client) TrackVisitor(ctx context.Context, payload VisitorPayload) (*Ack, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/visitors", bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.session.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.tracking.Do(req)
	if err != nil {
		c.logger.Debug("Visitor tracking delivery failed", slog.Any("error", err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Visitor tracking rejected", slog.Int("status", resp.StatusCode))
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}

	var ack Ack
	if err := json.Unmarshal(body, &ack); err != nil {
		// Delivered even if the ack body is not what we expect.
		return &Ack{}, true
	}
	return &ack, true
}
