package hub

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength caps chat message size in bytes.
const MaxMessageLength = 2000

var (
	errMessageEmpty    = errors.New("Message is empty")
	errMessageTooLong  = errors.New("Message too long")
	errMessageEncoding = errors.New("Message is not valid UTF-8")
)

// ValidateMessage checks a chat message before it is persisted. The error
// text is safe to send back to the client as-is.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return errMessageEmpty
	}
	if len(msg) > MaxMessageLength {
		return errMessageTooLong
	}
	if !utf8.ValidString(msg) {
		return errMessageEncoding
	}
	return nil
}
