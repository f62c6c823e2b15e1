package cms

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Fallback messages by failure class. The server's own message always takes
// priority when the body is parseable.
const (
	genericErrorMessage = "The content service returned an unexpected error"
	authErrorMessage    = "Not authorized. Log in again, or check that the content service permissions are configured for this collection."
)

// APIError represents a non-2xx response from the Content API with the
// server's message extracted from the body where possible.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("content api: %s (status %d)", e.Message, e.Status)
}

// IsAuth reports whether the error is a 401/403.
func (e *APIError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// newAPIError builds an APIError from a response status and body, extracting
// the structured error message the Content API embeds. Two body shapes are
// recognized: {"error": {"message": "..."}} and the older
// {"message": [{"messages": [{"message": "..."}]}]}. Anything else falls back
// to a generic string.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: genericErrorMessage}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		apiErr.Message = authErrorMessage
	}

	if len(body) == 0 {
		return apiErr
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apiErr
	}

	if envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		return apiErr
	}

	if msg := legacyMessage(envelope.Message); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}

// legacyMessage unpacks the nested message array used by older versions of
// the Content API, or a bare string message.
func legacyMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var nested []struct {
		Messages []struct {
			Message string `json:"message"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ""
	}
	for _, group := range nested {
		for _, m := range group.Messages {
			if m.Message != "" {
				return m.Message
			}
		}
	}
	return ""
}
