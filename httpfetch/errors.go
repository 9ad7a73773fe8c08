package httpfetch

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx application response. Message preserves the body's
// "message" field when the server sent one; otherwise a generic message is
// synthesized so callers always have non-empty human-readable text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// apiErrorFrom builds an APIError from a response status and body.
func apiErrorFrom(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload.Message = ""
		}
	}
	if payload.Message == "" {
		payload.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return &APIError{StatusCode: status, Message: payload.Message}
}
