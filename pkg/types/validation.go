package types

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var digitsRegex = regexp.MustCompile(`^[0-9]+$`)

// NormalizeRoomID turns a channel identifier into the canonical room key.
// Numbers and numeric strings normalize identically: 5, "5" and " 05 " all
// become "5". Anything else is rejected.
func NormalizeRoomID(raw json.RawMessage) (string, error) {
	id, err := parseID(raw)
	if err != nil {
		return "", ErrInvalidRoomID
	}
	return strconv.FormatInt(id, 10), nil
}

// RoomKey formats a stored channel id as a room key.
func RoomKey(channelID int64) string {
	return strconv.FormatInt(channelID, 10)
}

// ParseRoomKey converts a normalized room key back to the stored channel id.
func ParseRoomKey(roomID string) (int64, error) {
	id, err := parseIDString(roomID)
	if err != nil {
		return 0, ErrInvalidRoomID
	}
	return id, nil
}

// ParseMessageID decodes a message identifier in number or string form.
func ParseMessageID(raw json.RawMessage) (int64, error) {
	id, err := parseID(raw)
	if err != nil {
		return 0, ErrInvalidMessageID
	}
	return id, nil
}

// ParseUserID validates a user identifier taken from connection parameters.
func ParseUserID(s string) (int64, error) {
	id, err := parseIDString(s)
	if err != nil {
		return 0, ErrInvalidUserID
	}
	return id, nil
}

// ValidateContent enforces the non-empty and length rules. Content that is
// only whitespace counts as empty; otherwise it is stored as sent, so the
// length is measured on the raw text. maxRunes <= 0 disables the length check.
func ValidateContent(content string, maxRunes int) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		return ErrContentTooLong
	}
	return nil
}

func parseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrMalformedPayload
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return parseIDString(s)
	}

	return parseIDString(string(raw))
}

func parseIDString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if !digitsRegex.MatchString(s) {
		return 0, ErrMalformedPayload
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, ErrMalformedPayload
	}
	return id, nil
}
