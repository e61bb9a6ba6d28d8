package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gumelab/gume/internal/observe"
	"github.com/gumelab/gume/internal/store"
	"github.com/gumelab/gume/pkg/provider/reply"
	"github.com/gumelab/gume/pkg/provider/tts"
)

// ChatSession drives the duplex loop for one application client. It validates
// the target role, opens a fresh conversation for the connection, and then
// relays user utterances one at a time: persist the user message, generate
// and synthesize the reply, persist the role message, answer the client, and
// best-effort notify the user's hardware device.
//
// Frames on one session are processed strictly sequentially; a frame's
// persistence, synthesis, and outbound sends all complete before the next
// inbound frame is read. This is what guarantees that the persisted user
// message always precedes its role message in creation order.
type ChatSession struct {
	userID    string
	roleID    string
	conn      Conn
	store     store.Store
	providers *tts.Registry
	reply     reply.Generator
	directory *Directory
	metrics   *observe.Metrics

	role *store.Role
	conv *store.Conversation
}

// ChatSessionConfig holds the dependencies for a [ChatSession].
type ChatSessionConfig struct {
	// UserID identifies the connecting user. Required.
	UserID string

	// RoleID names the role the user wants to converse with. Required;
	// validated against the store when the session runs.
	RoleID string

	// Conn is the accepted chat connection. Required.
	Conn Conn

	// Store persists conversations and messages. Required.
	Store store.Store

	// Providers resolves the role's TTS provider key. Required.
	Providers *tts.Registry

	// Reply generates the role's reply text. Defaults to [reply.Echo].
	Reply reply.Generator

	// Directory routes playback notifications to the user's hardware
	// connection. Required.
	Directory *Directory

	// Metrics receives session instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewChatSession creates a session for one chat connection.
func NewChatSession(cfg ChatSessionConfig) (*ChatSession, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("relay: chat session: user id is required")
	}
	if cfg.RoleID == "" {
		return nil, fmt.Errorf("relay: chat session: role id is required")
	}
	if cfg.Conn == nil {
		return nil, fmt.Errorf("relay: chat session: connection is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("relay: chat session: store is required")
	}
	if cfg.Providers == nil {
		return nil, fmt.Errorf("relay: chat session: provider registry is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("relay: chat session: directory is required")
	}
	if cfg.Reply == nil {
		cfg.Reply = reply.Echo{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &ChatSession{
		userID:    cfg.UserID,
		roleID:    cfg.RoleID,
		conn:      cfg.Conn,
		store:     cfg.Store,
		providers: cfg.Providers,
		reply:     cfg.Reply,
		directory: cfg.Directory,
		metrics:   cfg.Metrics,
	}, nil
}

// Run validates the role, opens the conversation, and processes inbound
// frames until the peer disconnects or ctx is cancelled. Peer disconnects
// are normal termination; store failures terminate the session with an error.
//
// A fresh conversation is created per connection rather than resuming an
// earlier one, so two concurrent connections never write into the same
// conversation.
func (s *ChatSession) Run(ctx context.Context) error {
	role, err := s.store.GetRole(ctx, s.roleID)
	if err != nil {
		return fmt.Errorf("relay: load role %q: %w", s.roleID, err)
	}
	if role == nil {
		s.sendError(ctx, msgRoleNotFound)
		_ = s.conn.Close()
		slog.Info("chat session rejected: role not found", "user_id", s.userID, "role_id", s.roleID)
		return nil
	}
	s.role = role

	conv, err := s.store.CreateConversation(ctx, s.userID, role.ID)
	if err != nil {
		return fmt.Errorf("relay: create conversation: %w", err)
	}
	s.conv = conv

	s.metrics.ActiveChatSessions.Add(ctx, 1)
	defer s.metrics.ActiveChatSessions.Add(context.WithoutCancel(ctx), -1)

	slog.Info("chat session started",
		"user_id", s.userID,
		"role_id", role.ID,
		"conversation_id", conv.ID,
	)
	defer slog.Info("chat session ended", "user_id", s.userID, "conversation_id", conv.ID)

	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			slog.Debug("chat session read ended", "user_id", s.userID, "err", err)
			return nil
		}
		if err := s.handleFrame(ctx, data); err != nil {
			return err
		}
	}
}

// handleFrame processes one inbound frame end to end. Malformed frames are
// answered with an error frame and dropped; store failures are fatal to the
// session and returned to [ChatSession.Run].
func (s *ChatSession) handleFrame(ctx context.Context, data []byte) error {
	msg, err := decodeUserMessage(data)
	if err != nil {
		slog.Debug("chat session dropped malformed frame", "user_id", s.userID, "err", err)
		s.sendError(ctx, msgInvalidMessage)
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "relay.round_trip")
	defer span.End()

	if _, err := s.store.CreateMessage(ctx, &store.Message{
		ConversationID: s.conv.ID,
		Sender:         store.SenderUser,
		Text:           msg.Text,
	}); err != nil {
		return fmt.Errorf("relay: persist user message: %w", err)
	}

	replyText := s.generateReply(ctx, msg.Text)

	// Synthesis failures do not end the session: the reply is still
	// persisted and delivered, just without audio.
	provider := s.providers.Resolve(s.role.TTSProviderKey)
	start := time.Now()
	result, synthErr := provider.Synthesize(ctx, replyText, tts.VoiceParams(s.role.VoiceParams))
	latency := time.Since(start)
	s.metrics.RecordTTSDuration(ctx, s.providerKey(), latency.Seconds())

	var audioURL string
	status := "ok"
	if synthErr != nil {
		status = "no_audio"
		s.metrics.RecordProviderError(ctx, s.providerKey())
		observe.Logger(ctx).Warn("tts synthesis failed, relaying reply without audio",
			"user_id", s.userID,
			"provider", s.providerKey(),
			"err", synthErr,
		)
	} else {
		audioURL = result.AudioURL
	}

	if _, err := s.store.CreateMessage(ctx, &store.Message{
		ConversationID: s.conv.ID,
		Sender:         store.SenderRole,
		Text:           replyText,
		AudioURL:       audioURL,
		TTSProviderKey: s.providerKey(),
		LatencyMS:      latency.Milliseconds(),
	}); err != nil {
		return fmt.Errorf("relay: persist role message: %w", err)
	}

	frame, err := encodeFrame(RoleMessage{
		Type:           TypeRoleMessage,
		ConversationID: s.conv.ID,
		Text:           replyText,
		AudioURL:       audioURL,
	})
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("relay: send role message: %w", err)
	}

	if audioURL != "" {
		s.notifyHardware(ctx, audioURL)
	}

	s.metrics.RecordRelayMessage(ctx, s.role.ID, status)

	// Interaction metrics are best-effort bookkeeping.
	if err := s.store.RecordInteraction(ctx, s.userID, s.role.ID, 2); err != nil {
		slog.Debug("chat session interaction record failed", "user_id", s.userID, "err", err)
	}

	return nil
}

// generateReply produces the role's reply text. Generator failures fall back
// to echoing the input so the relay keeps functioning without a working
// generation backend.
func (s *ChatSession) generateReply(ctx context.Context, text string) string {
	start := time.Now()
	replyText, err := s.reply.Reply(ctx, reply.Request{
		RoleName: s.role.Name,
		Persona:  s.role.Description,
		Text:     text,
	})
	s.metrics.ReplyDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("reply generation failed, echoing input",
			"user_id", s.userID, "role_id", s.role.ID, "err", err)
		return text
	}
	return replyText
}

// notifyHardware best-effort forwards a playback notification to the user's
// hardware connection. A missing or failing hardware connection has no
// client-visible effect.
func (s *ChatSession) notifyHardware(ctx context.Context, audioURL string) {
	h, ok := s.directory.Get(s.userID)
	if !ok {
		return
	}
	frame, err := encodeFrame(PlayAudioFrame{
		Type:           TypePlayAudio,
		ConversationID: s.conv.ID,
		AudioURL:       audioURL,
	})
	if err != nil {
		return
	}
	if err := h.Write(ctx, frame); err != nil {
		slog.Debug("chat session hardware notify failed", "user_id", s.userID, "err", err)
	}
}

// sendError best-effort sends one error frame to the chat client.
func (s *ChatSession) sendError(ctx context.Context, message string) {
	frame, err := encodeFrame(ErrorFrame{Type: TypeError, Message: message})
	if err != nil {
		return
	}
	if err := s.conn.Write(ctx, frame); err != nil {
		slog.Debug("chat session error frame send failed", "user_id", s.userID, "err", err)
	}
}

// providerKey returns the role's configured TTS provider key, or the
// registry's fallback key when the role has none configured.
func (s *ChatSession) providerKey() string {
	if s.role.TTSProviderKey != "" {
		return s.role.TTSProviderKey
	}
	return tts.FallbackKey
}
