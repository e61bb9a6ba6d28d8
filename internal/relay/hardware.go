package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gumelab/gume/internal/observe"
)

// HardwareSession drives the duplex loop for one hardware playback device.
// The session registers its connection in the directory on start, answers
// every inbound frame with an acknowledgement, and deregisters itself on
// disconnect. Reconnection is the device's responsibility via a fresh
// session.
type HardwareSession struct {
	userID    string
	conn      Conn
	directory *Directory
	metrics   *observe.Metrics
}

// HardwareSessionConfig holds the dependencies for a [HardwareSession].
type HardwareSessionConfig struct {
	// UserID identifies the device owner. Required.
	UserID string

	// Conn is the accepted hardware connection. Required.
	Conn Conn

	// Directory is where the connection is registered for playback
	// routing. Required.
	Directory *Directory

	// Metrics receives session instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewHardwareSession creates a session for one hardware connection.
func NewHardwareSession(cfg HardwareSessionConfig) (*HardwareSession, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("relay: hardware session: user id is required")
	}
	if cfg.Conn == nil {
		return nil, fmt.Errorf("relay: hardware session: connection is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("relay: hardware session: directory is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &HardwareSession{
		userID:    cfg.UserID,
		conn:      cfg.Conn,
		directory: cfg.Directory,
		metrics:   cfg.Metrics,
	}, nil
}

// Run registers the connection and processes inbound frames until the peer
// disconnects or ctx is cancelled. Frame content is ignored; every frame is
// answered with one ack. Disconnects are normal termination, not errors.
func (s *HardwareSession) Run(ctx context.Context) error {
	s.directory.Put(s.userID, s.conn)
	defer s.directory.Remove(s.userID, s.conn)

	s.metrics.ActiveHardwareSessions.Add(ctx, 1)
	defer s.metrics.ActiveHardwareSessions.Add(context.WithoutCancel(ctx), -1)

	slog.Info("hardware session started", "user_id", s.userID)
	defer slog.Info("hardware session ended", "user_id", s.userID)

	ack, err := encodeFrame(AckFrame{Type: TypeAck, Message: "ok"})
	if err != nil {
		return err
	}

	for {
		if _, err := s.conn.Read(ctx); err != nil {
			slog.Debug("hardware session read ended", "user_id", s.userID, "err", err)
			return nil
		}
		if err := s.conn.Write(ctx, ack); err != nil {
			slog.Debug("hardware session write ended", "user_id", s.userID, "err", err)
			return nil
		}
		s.metrics.HardwareFrames.Add(ctx, 1)
	}
}
