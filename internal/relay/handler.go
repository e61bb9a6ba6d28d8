package relay

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/gumelab/gume/internal/observe"
	"github.com/gumelab/gume/internal/store"
	"github.com/gumelab/gume/pkg/provider/reply"
	"github.com/gumelab/gume/pkg/provider/tts"
)

// Handler exposes the chat and hardware websocket endpoints.
type Handler struct {
	// Store persists conversations and messages. Required.
	Store store.Store

	// Providers resolves roles' TTS provider keys. Required.
	Providers *tts.Registry

	// Reply generates role replies. Defaults to [reply.Echo].
	Reply reply.Generator

	// Directory tracks live hardware connections. Required.
	Directory *Directory

	// Metrics receives relay instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// AllowedOrigins restricts websocket origins. Empty allows any origin.
	AllowedOrigins []string
}

// Register mounts the websocket endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/chat", h.handleChat)
	mux.HandleFunc("GET /ws/hardware", h.handleHardware)
}

// handleChat upgrades the connection and runs a [ChatSession] until the
// client disconnects. The user and role are addressed via the user_id and
// role_id query parameters.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	roleID := r.URL.Query().Get("role_id")
	if userID == "" || roleID == "" {
		http.Error(w, "user_id and role_id are required", http.StatusBadRequest)
		return
	}

	wsc, err := h.accept(w, r)
	if err != nil {
		slog.Warn("chat websocket accept failed", "user_id", userID, "err", err)
		return
	}
	conn := NewConn(wsc)

	sess, err := NewChatSession(ChatSessionConfig{
		UserID:    userID,
		RoleID:    roleID,
		Conn:      conn,
		Store:     h.Store,
		Providers: h.Providers,
		Reply:     h.Reply,
		Directory: h.Directory,
		Metrics:   h.Metrics,
	})
	if err != nil {
		slog.Error("chat session setup failed", "user_id", userID, "err", err)
		wsc.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	if err := sess.Run(r.Context()); err != nil {
		slog.Error("chat session failed", "user_id", userID, "role_id", roleID, "err", err)
		wsc.Close(websocket.StatusInternalError, "internal error")
		return
	}
	_ = conn.Close()
}

// handleHardware upgrades the connection and runs a [HardwareSession] until
// the device disconnects. The owning user is addressed via the user_id query
// parameter.
func (h *Handler) handleHardware(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	wsc, err := h.accept(w, r)
	if err != nil {
		slog.Warn("hardware websocket accept failed", "user_id", userID, "err", err)
		return
	}
	conn := NewConn(wsc)

	sess, err := NewHardwareSession(HardwareSessionConfig{
		UserID:    userID,
		Conn:      conn,
		Directory: h.Directory,
		Metrics:   h.Metrics,
	})
	if err != nil {
		slog.Error("hardware session setup failed", "user_id", userID, "err", err)
		wsc.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	if err := sess.Run(r.Context()); err != nil {
		slog.Error("hardware session failed", "user_id", userID, "err", err)
		wsc.Close(websocket.StatusInternalError, "internal error")
		return
	}
	_ = conn.Close()
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	opts := &websocket.AcceptOptions{}
	if len(h.AllowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.AllowedOrigins
	}
	return websocket.Accept(w, r, opts)
}
