// Package protocol defines the frames exchanged over the chat WebSocket.
//
// Browsers speak through the htmx WebSocket extension: a form marked
// ws-send is serialized as a JSON object of its fields plus a HEADERS
// object, and the server answers with HTML fragments carrying
// hx-swap-oob attributes.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMessageEmpty is returned when a message has no text.
	ErrMessageEmpty = errors.New("message cannot be empty")
	// ErrMessageTooLong is returned when a message exceeds the length limit.
	ErrMessageTooLong = errors.New("message is too long")
)

// Error codes
const (
	ErrCodeInvalidMsg  = "invalid_message"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal_error"
)

// SendMessage is sent by the browser when the message form is submitted.
type SendMessage struct {
	Message string            `json:"message"`
	Headers map[string]string `json:"HEADERS,omitempty"`
}

// NormalizeText flattens newlines to spaces and trims surrounding whitespace.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

// ParseSendMessage decodes a send frame and normalizes its text.
// Texts longer than maxLen runes are rejected.
func ParseSendMessage(data []byte, maxLen int) (*SendMessage, error) {
	var msg SendMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}

	msg.Message = NormalizeText(msg.Message)
	if msg.Message == "" {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(msg.Message) > maxLen {
		return nil, ErrMessageTooLong
	}
	return &msg, nil
}

// Encode serializes a send frame the way the htmx WebSocket extension does.
func (m SendMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
