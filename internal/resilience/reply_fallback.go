package resilience

import (
	"context"

	"github.com/gumelab/gume/pkg/provider/reply"
)

// ReplyFallback implements [reply.Generator] with automatic failover across
// multiple generation backends. Registering [reply.Echo] as the last fallback
// keeps sessions responsive even when every LLM backend is down.
type ReplyFallback struct {
	group *FallbackGroup[reply.Generator]
}

var _ reply.Generator = (*ReplyFallback)(nil)

// NewReplyFallback creates a [ReplyFallback] with primary as the preferred
// backend.
func NewReplyFallback(primary reply.Generator, primaryName string, cfg FallbackConfig) *ReplyFallback {
	return &ReplyFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional generator as a fallback.
func (f *ReplyFallback) AddFallback(name string, g reply.Generator) {
	f.group.AddFallback(name, g)
}

// Reply runs the request against the first healthy backend.
func (f *ReplyFallback) Reply(ctx context.Context, req reply.Request) (string, error) {
	return ExecuteWithResult(f.group, func(g reply.Generator) (string, error) {
		return g.Reply(ctx, req)
	})
}
