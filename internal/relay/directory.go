package relay

import (
	"context"
	"log/slog"
	"sync"
)

// Handle is the outbound surface of a registered hardware connection.
type Handle interface {
	// Write sends one text frame on the connection.
	Write(ctx context.Context, data []byte) error

	// Close tears the connection down. Closing an already-closed
	// connection is a no-op.
	Close() error
}

// Directory maps a user ID to at most one live hardware connection handle.
// Registration is last-connect-wins: a new [Directory.Put] for the same user
// displaces and closes any earlier handle. All methods are safe for
// concurrent use.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]Handle)}
}

// Put registers h as the current hardware connection for userID. Any
// previously registered handle for the same user is displaced and closed so
// the stale connection does not linger server-side.
func (d *Directory) Put(userID string, h Handle) {
	d.mu.Lock()
	displaced := d.entries[userID]
	d.entries[userID] = h
	d.mu.Unlock()

	if displaced != nil && displaced != h {
		if err := displaced.Close(); err != nil {
			slog.Debug("directory: close displaced hardware connection", "user_id", userID, "err", err)
		}
	}
}

// Remove deregisters h for userID. The entry is removed only when it still
// refers to h, so a slow disconnect cannot evict a newer connection that
// re-registered in the meantime.
func (d *Directory) Remove(userID string, h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.entries[userID] == h {
		delete(d.entries, userID)
	}
}

// Get returns the current hardware handle for userID, or false when the user
// has no registered hardware connection. Never blocks on connection I/O.
func (d *Directory) Get(userID string) (Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.entries[userID]
	return h, ok
}

// Len returns the number of registered hardware connections.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
