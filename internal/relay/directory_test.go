package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeConn is an in-memory [Conn] driven by a channel of inbound frames.
type fakeConn struct {
	mu     sync.Mutex
	in     chan []byte
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, errors.New("connection closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write records the outbound frame. Writes keep succeeding after Close so a
// session can answer frames that were queued before the peer disconnected;
// Close only ends the inbound stream, mirroring a socket shutdown.
func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

// send queues an inbound frame for the session to read.
func (c *fakeConn) send(data []byte) {
	c.in <- data
}

func (c *fakeConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestDirectory_PutGet(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	h := newFakeConn()

	if _, ok := d.Get("u1"); ok {
		t.Fatal("Get() on empty directory should report no handle")
	}

	d.Put("u1", h)
	got, ok := d.Get("u1")
	if !ok {
		t.Fatal("Get() after Put() should find the handle")
	}
	if got != Handle(h) {
		t.Error("Get() returned a different handle than registered")
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
}

func TestDirectory_LastConnectWins(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	h1 := newFakeConn()
	h2 := newFakeConn()

	d.Put("u1", h1)
	d.Put("u1", h2)

	got, ok := d.Get("u1")
	if !ok || got != Handle(h2) {
		t.Fatal("Get() should return the newest handle after re-registration")
	}
	if !h1.Closed() {
		t.Error("displaced handle should have been closed")
	}
	if h2.Closed() {
		t.Error("current handle must not be closed")
	}
}

func TestDirectory_StaleRemoveGuard(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	h1 := newFakeConn()
	h2 := newFakeConn()

	d.Put("u1", h1)
	d.Put("u1", h2)

	// A late disconnect of the displaced connection must not evict the
	// newer registration.
	d.Remove("u1", h1)
	got, ok := d.Get("u1")
	if !ok || got != Handle(h2) {
		t.Fatal("Remove() of a stale handle must not evict the current one")
	}

	d.Remove("u1", h2)
	if _, ok := d.Get("u1"); ok {
		t.Fatal("Remove() of the current handle should clear the entry")
	}
}

func TestDirectory_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := newFakeConn()
			for j := 0; j < 50; j++ {
				d.Put("u1", h)
				d.Get("u1")
				d.Remove("u1", h)
			}
		}()
	}
	wg.Wait()
}
