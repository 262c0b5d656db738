package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxErrorBodySize = 64 * 1024
	maxMessageLength = 200
	truncationMarker = "..."
)

// ErrIncompleteResponse is returned when the backend answers 2xx without a usable upload URL or file key.
var ErrIncompleteResponse = errors.New("incomplete presigned url response")

var messagePolicy = bluemonday.StrictPolicy()

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Message returns a human readable error text sent by the server, or "" if there is none.
// JSON bodies are searched for a "message" or "error" field; other bodies are used as plain text.
// Markup is stripped in both cases.
func (e *StatusError) Message() string {
	text := e.Body

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err == nil {
		text = payload.Message
		if text == "" {
			text = payload.Error
		}
	} else if strings.HasPrefix(strings.TrimSpace(e.Body), "{") {
		// Malformed JSON is not shown to users.
		return ""
	}

	return sanitize(text)
}

func sanitize(text string) string {
	text = html.UnescapeString(messagePolicy.Sanitize(text))
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxMessageLength {
		text = strings.TrimSpace(string(runes[:maxMessageLength])) + truncationMarker
	}
	return text
}

// ServerMessage extracts the server supplied text from err, if err wraps a StatusError.
func ServerMessage(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message()
	}
	return ""
}
