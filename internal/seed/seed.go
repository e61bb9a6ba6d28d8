// Package seed populates the database with demo data for local development:
// a demo user, two roles with a starter conversation each, and the built-in
// TTS provider catalogue entries.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gumelab/gume/internal/store"
)

// demoUserID is the account all seeded conversations belong to.
const demoUserID = "demo-user-001"

func demoRoles() []*store.Role {
	return []*store.Role{
		{
			ID:             "explorer",
			Name:           "李泽言",
			Promote:        "Zh集团总裁",
			Greeting:       "别走神，专心一点。今天的行程我来安排。",
			Tags:           []string{"总裁", "理性", "毒舌"},
			IsActive:       true,
			TTSProviderKey: "dummy",
		},
		{
			ID:             "scholar",
			Name:           "许墨",
			Promote:        "认知科学教授",
			Greeting:       "关于你，我还有很多假设想验证。",
			Tags:           []string{"温柔", "智性", "神秘"},
			IsActive:       true,
			TTSProviderKey: "dummy",
		},
	}
}

func demoProviders() []*store.TTSProviderRecord {
	return []*store.TTSProviderRecord{
		{Key: "dummy", Name: "Dummy"},
		{Key: "elevenlabs", Name: "ElevenLabs", Config: map[string]any{"model": "eleven_multilingual_v2"}},
	}
}

// Run inserts the demo data. It is idempotent: roles, providers, and starter
// conversations that already exist are left untouched.
func Run(ctx context.Context, s store.Store) error {
	if _, err := s.UpsertUser(ctx, &store.User{
		ID:       demoUserID,
		Email:    "demo@example.com",
		Username: "demo",
		IsActive: true,
	}); err != nil {
		return fmt.Errorf("seed: upsert demo user: %w", err)
	}

	for _, rec := range demoProviders() {
		if _, err := s.CreateProvider(ctx, rec); err != nil {
			if errors.Is(err, store.ErrProviderExists) {
				continue
			}
			return fmt.Errorf("seed: create provider %q: %w", rec.Key, err)
		}
	}

	for _, role := range demoRoles() {
		existing, err := s.GetRole(ctx, role.ID)
		if err != nil {
			return fmt.Errorf("seed: look up role %q: %w", role.ID, err)
		}
		if existing != nil {
			continue
		}
		if _, err := s.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("seed: create role %q: %w", role.ID, err)
		}
		if err := seedConversation(ctx, s, role); err != nil {
			return err
		}
		slog.Info("seeded demo role", "role", role.ID, "name", role.Name)
	}

	return nil
}

// seedConversation creates one starter conversation for role with a short
// scripted exchange, so history endpoints return something out of the box.
func seedConversation(ctx context.Context, s store.Store, role *store.Role) error {
	conv, err := s.CreateConversation(ctx, demoUserID, role.ID)
	if err != nil {
		return fmt.Errorf("seed: create conversation for role %q: %w", role.ID, err)
	}

	greeting := role.Greeting
	if greeting == "" {
		greeting = "你好！"
	}
	script := []*store.Message{
		{ConversationID: conv.ID, Sender: store.SenderSystem, Text: greeting},
		{ConversationID: conv.ID, Sender: store.SenderUser, Text: "你好呀！"},
		{ConversationID: conv.ID, Sender: store.SenderRole, Text: "今天想聊点什么？"},
		{ConversationID: conv.ID, Sender: store.SenderUser, Text: "想听听你的安排。"},
	}
	for _, msg := range script {
		if _, err := s.CreateMessage(ctx, msg); err != nil {
			return fmt.Errorf("seed: create message in conversation %q: %w", conv.ID, err)
		}
	}
	return nil
}
