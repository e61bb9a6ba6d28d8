// Package relay implements the real-time conversation relay: duplex
// websocket sessions that pair a chat client with an optional hardware
// playback device, turn inbound user utterances into persisted messages,
// synthesize audio through the TTS provider registry, and fan replies out to
// both peers.
package relay

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminators. Every frame on the wire is a JSON object with a
// `type` field holding one of these values.
const (
	TypeUserMessage = "user_message"
	TypeRoleMessage = "role_message"
	TypeError       = "error"
	TypeAck         = "ack"
	TypePlayAudio   = "play_audio"
)

// Error frame messages sent to chat clients.
const (
	msgRoleNotFound   = "Role not found"
	msgInvalidMessage = "Invalid message"
)

// UserMessage is the inbound chat frame carrying one user utterance.
type UserMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// RoleMessage is the outbound chat frame carrying the role's reply. AudioURL
// is omitted when synthesis produced no audio.
type RoleMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	AudioURL       string `json:"audio_url,omitempty"`
}

// ErrorFrame is the outbound frame reporting a failure to the chat client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AckFrame is the outbound hardware frame acknowledging one inbound frame.
type AckFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlayAudioFrame is the outbound hardware frame instructing playback of a
// synthesized reply.
type PlayAudioFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	AudioURL       string `json:"audio_url"`
}

// decodeUserMessage parses an inbound chat frame. It rejects frames that are
// not valid JSON or whose type is not [TypeUserMessage].
func decodeUserMessage(data []byte) (*UserMessage, error) {
	var msg UserMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("relay: decode frame: %w", err)
	}
	if msg.Type != TypeUserMessage {
		return nil, fmt.Errorf("relay: unexpected frame type %q", msg.Type)
	}
	return &msg, nil
}

// encodeFrame marshals an outbound frame. Marshalling the frame structs in
// this package cannot fail; the error return guards against future frame
// types carrying unmarshalable fields.
func encodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("relay: encode frame: %w", err)
	}
	return data, nil
}
