// Package mock provides a test double for the reply.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/gumelab/gume/pkg/provider/reply"
)

// Generator is a mock implementation of reply.Generator.
type Generator struct {
	mu sync.Mutex

	// ReplyText is returned by Reply when ReplyErr is nil. When empty, the
	// request text is echoed (matching the default generator).
	ReplyText string

	// ReplyErr, if non-nil, is returned as the error from Reply.
	ReplyErr error

	// ReplyCalls records every request passed to Reply in order.
	ReplyCalls []reply.Request
}

// Reply records the call and returns the configured text or error.
func (g *Generator) Reply(_ context.Context, req reply.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ReplyCalls = append(g.ReplyCalls, req)
	if g.ReplyErr != nil {
		return "", g.ReplyErr
	}
	if g.ReplyText != "" {
		return g.ReplyText, nil
	}
	return req.Text, nil
}

// Ensure Generator implements reply.Generator at compile time.
var _ reply.Generator = (*Generator)(nil)
