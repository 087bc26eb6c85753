package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Turn is one (user, assistant) exchange. On the wire it is a two-element array of strings.
type Turn struct {
	User      string
	Assistant string
}

// History is an ordered list of turns, oldest first.
type History []Turn

// MarshalJSON encodes the turn as ["user", "assistant"].
func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.User, t.Assistant})
}

// UnmarshalJSON accepts exactly a two-element array of strings.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("history item must be a [user, assistant] pair: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("history item must have exactly 2 elements, got %d", len(raw))
	}
	user, err := turnText(raw[0])
	if err != nil {
		return fmt.Errorf("history item user message must be a string")
	}
	assistant, err := turnText(raw[1])
	if err != nil {
		return fmt.Errorf("history item assistant message must be a string")
	}
	t.User, t.Assistant = user, assistant
	return nil
}

// turnText decodes one pair element. JSON null decodes into a string without
// error, so it is rejected explicitly.
func turnText(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", errors.New("null is not a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
