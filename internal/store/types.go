package store

import (
	"errors"
	"fmt"
	"time"
)

// Sender identifies who produced a message. The set is closed; the database
// enforces it with a check constraint and [Sender.IsValid] mirrors it in Go.
type Sender string

const (
	SenderUser     Sender = "user"
	SenderRole     Sender = "role"
	SenderSystem   Sender = "system"
	SenderHardware Sender = "hardware"
)

// IsValid reports whether s is one of the four recognised senders.
func (s Sender) IsValid() bool {
	switch s {
	case SenderUser, SenderRole, SenderSystem, SenderHardware:
		return true
	}
	return false
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationEnded  ConversationStatus = "ended"
)

// Role is a character profile users converse with. TTSProviderKey and
// VoiceParams configure speech synthesis for the role's replies.
type Role struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Promote         string         `json:"promote,omitempty"`
	Greeting        string         `json:"greeting,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	ImageURL        string         `json:"image_url,omitempty"`
	SilhouetteURL   string         `json:"silhouette_url,omitempty"`
	IsActive        bool           `json:"is_active"`
	PopularityScore int            `json:"popularity_score"`
	TTSProviderKey  string         `json:"tts_provider_key,omitempty"`
	VoiceParams     map[string]any `json:"voice_params,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Validate checks the role for required fields.
func (r *Role) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(r.Name) > 64 {
		errs = append(errs, fmt.Errorf("name exceeds 64 characters (%d)", len(r.Name)))
	}
	return errors.Join(errs...)
}

// Conversation is one ongoing exchange between a user and a role.
type Conversation struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	RoleID    string             `json:"role_id,omitempty"`
	Status    ConversationStatus `json:"status"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
}

// Message is a single entry in a conversation. Messages are append-only: the
// store exposes no update or delete for them.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text,omitempty"`
	AudioURL       string    `json:"audio_url,omitempty"`
	TTSProviderKey string    `json:"tts_provider_key,omitempty"`
	LatencyMS      int64     `json:"latency_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the message for required fields and a recognised sender.
func (m *Message) Validate() error {
	var errs []error
	if m.ConversationID == "" {
		errs = append(errs, errors.New("conversation_id is required"))
	}
	if !m.Sender.IsValid() {
		errs = append(errs, fmt.Errorf("sender %q is invalid; valid values: user, role, system, hardware", m.Sender))
	}
	return errors.Join(errs...)
}

// TTSProviderRecord is the persisted catalogue entry for a TTS provider key.
// The runtime binding of keys to implementations lives in the provider
// registry; this record only carries display metadata and configuration.
type TTSProviderRecord struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// User is an application account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRoleMetric aggregates per user-role interaction statistics.
type UserRoleMetric struct {
	UserID            string     `json:"user_id"`
	RoleID            string     `json:"role_id"`
	AccompanyDays     int        `json:"accompany_days"`
	TotalMessages     int        `json:"total_messages"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}
