package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

// Asset is one uploaded file record returned by the upload endpoint.
type Asset struct {
	ID   uint    `json:"id"`
	URL  string  `json:"url"`
	Name string  `json:"name"`
	Mime string  `json:"mime"`
	Size float64 `json:"size"`
}

// Upload sends a file to POST /api/upload as multipart form data. The
// endpoint answers with an array of asset records; the first one is the file
// just stored. Client-side MIME/size prechecks belong to the forms layer,
// not here.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (*Asset, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="files"; filename=%q`, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token := c.session.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content api unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, body)
		c.logger.Debug("Upload rejected by content api",
			slog.String("filename", filename),
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message))
		return nil, apiErr
	}

	var assets []Asset
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, fmt.Errorf("unexpected upload response shape: %w", err)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("upload endpoint returned no asset record")
	}
	return &assets[0], nil
}
