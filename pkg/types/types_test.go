package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// Functional Validation Tests - Room identifiers

func TestNormalizeRoomID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "number", raw: `5`, want: "5"},
		{name: "string", raw: `"5"`, want: "5"},
		{name: "padded string", raw: `" 05 "`, want: "5"},
		{name: "large number", raw: `9007199254740`, want: "9007199254740"},
		{name: "zero", raw: `0`, wantErr: ErrInvalidRoomID},
		{name: "negative", raw: `-3`, wantErr: ErrInvalidRoomID},
		{name: "float", raw: `5.5`, wantErr: ErrInvalidRoomID},
		{name: "word", raw: `"general"`, wantErr: ErrInvalidRoomID},
		{name: "null", raw: `null`, wantErr: ErrInvalidRoomID},
		{name: "missing", raw: ``, wantErr: ErrInvalidRoomID},
		{name: "overflow", raw: `99999999999999999999`, wantErr: ErrInvalidRoomID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRoomID(json.RawMessage(tt.raw))
			if err != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected room %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRoomKeyRoundTrip(t *testing.T) {
	id, err := ParseRoomKey(RoomKey(42))
	if err != nil {
		t.Fatalf("ParseRoomKey failed: %v", err)
	}
	if id != 42 {
		t.Errorf("Expected 42, got %d", id)
	}

	if _, err := ParseRoomKey("abc"); err != ErrInvalidRoomID {
		t.Errorf("Expected ErrInvalidRoomID, got %v", err)
	}
}

func TestParseMessageID(t *testing.T) {
	if id, err := ParseMessageID(json.RawMessage(`"42"`)); err != nil || id != 42 {
		t.Errorf("Expected 42, got %d (%v)", id, err)
	}
	if _, err := ParseMessageID(json.RawMessage(`{}`)); err != ErrInvalidMessageID {
		t.Errorf("Expected ErrInvalidMessageID, got %v", err)
	}
}

func TestParseUserID(t *testing.T) {
	if id, err := ParseUserID("7"); err != nil || id != 7 {
		t.Errorf("Expected 7, got %d (%v)", id, err)
	}
	for _, bad := range []string{"", "abc", "-1", "0", "1 OR 1=1"} {
		if _, err := ParseUserID(bad); err != ErrInvalidUserID {
			t.Errorf("ParseUserID(%q): expected ErrInvalidUserID, got %v", bad, err)
		}
	}
}

// Functional Validation Tests - Content

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		wantErr error
	}{
		{name: "plain", content: "hi", max: 10},
		{name: "surrounding whitespace", content: "  hi \n", max: 10},
		{name: "empty", content: "", max: 10, wantErr: ErrEmptyContent},
		{name: "whitespace", content: " \t ", max: 10, wantErr: ErrEmptyContent},
		{name: "at limit", content: strings.Repeat("é", 10), max: 10},
		{name: "over limit", content: strings.Repeat("a", 11), max: 10, wantErr: ErrContentTooLong},
		{name: "padding counts", content: " " + strings.Repeat("a", 10), max: 10, wantErr: ErrContentTooLong},
		{name: "no limit", content: strings.Repeat("a", 5000), max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateContent(tt.content, tt.max); err != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// Functional Validation Tests - Wire format

func TestNewMessage_WireFormat(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	frame := NewOutbound(EventNewMessage, &NewMessage{
		ID:        42,
		Content:   "hi",
		Sender:    "alice",
		ChannelID: "5",
		CreatedAt: created,
	})

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["event"] != "new_message" {
		t.Errorf("Expected event new_message, got %v", decoded["event"])
	}
	payload := decoded["data"].(map[string]interface{})
	if payload["channel_id"] != "5" {
		t.Errorf("Expected string channel_id, got %#v", payload["channel_id"])
	}
	if payload["created_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("Unexpected created_at %v", payload["created_at"])
	}
}
