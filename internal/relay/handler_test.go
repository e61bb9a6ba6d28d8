package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/gumelab/gume/internal/observe"
	"github.com/gumelab/gume/pkg/provider/tts"
	"github.com/gumelab/gume/pkg/provider/tts/dummy"
	ttsmock "github.com/gumelab/gume/pkg/provider/tts/mock"
)

// newRelayServer mounts the handler behind the observability middleware the
// way main assembles the production mux, so upgrades are exercised through
// the wrapped ResponseWriter.
func newRelayServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(observe.Middleware(observe.DefaultMetrics())(mux))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, ctx context.Context, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, srv.URL+path, &websocket.DialOptions{
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return c
}

func TestHandler_HardwareUpgradeThroughMiddleware(t *testing.T) {
	t.Parallel()

	dir := NewDirectory()
	srv := newRelayServer(t, &Handler{
		Store:     newFakeStore(),
		Providers: tts.NewRegistry(dummy.New()),
		Directory: dir,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialWS(t, ctx, srv, "/ws/hardware?user_id=u1")
	defer c.Close(websocket.StatusNormalClosure, "")

	if err := c.Write(ctx, websocket.MessageText, []byte(`{"status":"ready"}`)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	ack := decodeFrame[AckFrame](t, data)
	if ack.Type != TypeAck || ack.Message != "ok" {
		t.Errorf("ack = %+v, want {ack ok}", ack)
	}

	// The session registers the connection for playback routing.
	deadline := time.Now().Add(2 * time.Second)
	for dir.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if dir.Len() != 1 {
		t.Errorf("directory size = %d, want 1 live hardware connection", dir.Len())
	}
}

func TestHandler_ChatRoundTripThroughMiddleware(t *testing.T) {
	t.Parallel()

	st := newFakeStore(explorerRole)
	srv := newRelayServer(t, &Handler{
		Store:     st,
		Providers: tts.NewRegistry(&ttsmock.Provider{}),
		Directory: NewDirectory(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialWS(t, ctx, srv, "/ws/chat?user_id=u1&role_id=explorer")
	defer c.Close(websocket.StatusNormalClosure, "")

	if err := c.Write(ctx, websocket.MessageText, userFrame(t, "", "你好")); err != nil {
		t.Fatalf("write user message: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read role message: %v", err)
	}
	msg := decodeFrame[RoleMessage](t, data)
	if msg.Type != TypeRoleMessage {
		t.Fatalf("frame type = %q, want role_message", msg.Type)
	}
	if msg.Text != "你好" {
		t.Errorf("text = %q, want the echoed input", msg.Text)
	}
	if msg.AudioURL == "" {
		t.Error("role message should carry the synthesised audio url")
	}
	if len(st.Messages()) != 2 {
		t.Errorf("persisted %d messages, want user + role", len(st.Messages()))
	}
}

func TestHandler_ChatRejectsMissingParams(t *testing.T) {
	t.Parallel()

	srv := newRelayServer(t, &Handler{
		Store:     newFakeStore(),
		Providers: tts.NewRegistry(dummy.New()),
		Directory: NewDirectory(),
	})

	resp, err := srv.Client().Get(srv.URL + "/ws/chat?user_id=u1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without role_id", resp.StatusCode)
	}
}
