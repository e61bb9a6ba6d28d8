// Package store persists conversations, messages, roles and related records
// in PostgreSQL.
package store

import (
	"context"
	"errors"
)

// ErrProviderExists is returned when creating a TTS provider record whose key
// is already taken.
var ErrProviderExists = errors.New("tts provider key already exists")

// ErrConversationNotFound is returned when a message references a
// conversation that does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// Store is the persistence surface the relay and HTTP API depend on.
// Lookups return (nil, nil) when no matching row exists.
type Store interface {
	// Roles.
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context, activeOnly bool) ([]*Role, error)
	CreateRole(ctx context.Context, role *Role) (*Role, error)

	// Conversations.
	CreateConversation(ctx context.Context, userID, roleID string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	EndConversation(ctx context.Context, id string) (*Conversation, error)

	// Messages.
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// TTS provider catalogue.
	CreateProvider(ctx context.Context, rec *TTSProviderRecord) (*TTSProviderRecord, error)
	ListProviders(ctx context.Context) ([]*TTSProviderRecord, error)

	// Users and interaction metrics.
	UpsertUser(ctx context.Context, user *User) (*User, error)
	ListUserRoleMetrics(ctx context.Context, userID string) ([]*UserRoleMetric, error)
	RecordInteraction(ctx context.Context, userID, roleID string, messages int) error
}
