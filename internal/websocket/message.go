package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// NewMessage encodes an action and its payload for the wire.
func NewMessage(action string, payload any) ([]byte, error) {
	return json.Marshal(Message{Action: action, Payload: payload})
}

// NewErrorMessage builds an "error" message carrying msg.
func NewErrorMessage(msg string) []byte {
	b, err := NewMessage("error", map[string]string{"message": msg})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode websocket error message")
		return nil
	}
	return b
}
