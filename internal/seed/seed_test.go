package seed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gumelab/gume/internal/store"
)

type fakeStore struct {
	users     map[string]*store.User
	roles     map[string]*store.Role
	providers map[string]*store.TTSProviderRecord
	convs     []*store.Conversation
	messages  []*store.Message
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*store.User),
		roles:     make(map[string]*store.Role),
		providers: make(map[string]*store.TTSProviderRecord),
	}
}

func (s *fakeStore) UpsertUser(_ context.Context, u *store.User) (*store.User, error) {
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeStore) GetRole(_ context.Context, id string) (*store.Role, error) {
	return s.roles[id], nil
}

func (s *fakeStore) CreateRole(_ context.Context, role *store.Role) (*store.Role, error) {
	s.roles[role.ID] = role
	return role, nil
}

func (s *fakeStore) CreateProvider(_ context.Context, rec *store.TTSProviderRecord) (*store.TTSProviderRecord, error) {
	if _, dup := s.providers[rec.Key]; dup {
		return nil, store.ErrProviderExists
	}
	s.providers[rec.Key] = rec
	return rec, nil
}

func (s *fakeStore) CreateConversation(_ context.Context, userID, roleID string) (*store.Conversation, error) {
	conv := &store.Conversation{
		ID:     fmt.Sprintf("conv-%d", len(s.convs)+1),
		UserID: userID,
		RoleID: roleID,
		Status: store.ConversationActive,
	}
	s.convs = append(s.convs, conv)
	return conv, nil
}

func (s *fakeStore) CreateMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) ListRoles(context.Context, bool) ([]*store.Role, error) { return nil, nil }
func (s *fakeStore) GetConversation(context.Context, string) (*store.Conversation, error) {
	return nil, nil
}
func (s *fakeStore) ListConversations(context.Context, string) ([]*store.Conversation, error) {
	return nil, nil
}
func (s *fakeStore) EndConversation(context.Context, string) (*store.Conversation, error) {
	return nil, nil
}
func (s *fakeStore) ListMessages(context.Context, string, int) ([]*store.Message, error) {
	return nil, nil
}
func (s *fakeStore) ListProviders(context.Context) ([]*store.TTSProviderRecord, error) {
	return nil, nil
}
func (s *fakeStore) ListUserRoleMetrics(context.Context, string) ([]*store.UserRoleMetric, error) {
	return nil, nil
}
func (s *fakeStore) RecordInteraction(context.Context, string, string, int) error { return nil }

func TestRun_InsertsDemoData(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := Run(ctx, st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.users[demoUserID] == nil {
		t.Error("demo user was not created")
	}
	for _, id := range []string{"explorer", "scholar"} {
		if st.roles[id] == nil {
			t.Errorf("role %q was not created", id)
		}
	}
	for _, key := range []string{"dummy", "elevenlabs"} {
		if st.providers[key] == nil {
			t.Errorf("provider %q was not created", key)
		}
	}
	if len(st.convs) != 2 {
		t.Errorf("got %d conversations, want one per role", len(st.convs))
	}
	// Each starter conversation carries the scripted four-message exchange.
	if len(st.messages) != 8 {
		t.Errorf("got %d messages, want 8", len(st.messages))
	}
	if len(st.messages) > 0 && st.messages[0].Sender != store.SenderSystem {
		t.Errorf("first message sender = %q, want system greeting", st.messages[0].Sender)
	}
}

func TestRun_IsIdempotent(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	ctx := context.Background()

	if err := Run(ctx, st); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	convs, msgs := len(st.convs), len(st.messages)

	if err := Run(ctx, st); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(st.convs) != convs {
		t.Errorf("second run added conversations: %d -> %d", convs, len(st.convs))
	}
	if len(st.messages) != msgs {
		t.Errorf("second run added messages: %d -> %d", msgs, len(st.messages))
	}
}
