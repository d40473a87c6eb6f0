package relay

import (
	"fmt"
	"unicode/utf8"
)

// Limits carried over from the teacher's chat.ValidateMessage (§4.5).
const (
	maxMessageBytes = 4096
	maxMessageChars = 2000
)

// ValidateMessage checks a chat message's size and encoding before it is
// relayed or filtered.
func ValidateMessage(text string) error {
	if text == "" {
		return fmt.Errorf("relay: %w: empty message", ErrProtocolViolation)
	}
	if len(text) > maxMessageBytes {
		return fmt.Errorf("relay: %w: message exceeds %d bytes", ErrProtocolViolation, maxMessageBytes)
	}
	if utf8.RuneCountInString(text) > maxMessageChars {
		return fmt.Errorf("relay: %w: message exceeds %d characters", ErrProtocolViolation, maxMessageChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("relay: %w: invalid UTF-8", ErrProtocolViolation)
	}
	return nil
}
