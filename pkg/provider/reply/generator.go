// Package reply defines the Generator interface for producing a role's reply
// text to a user utterance.
//
// The relay treats reply generation as a pluggable capability: the default
// [Echo] generator simply mirrors the user's text back, and an LLM-backed
// generator (see the anyllm sub-package) can be substituted without touching
// session logic.
//
// Implementations must be safe for concurrent use.
package reply

import "context"

// Request carries everything a generator needs to produce a reply.
type Request struct {
	// RoleName is the role's display name.
	RoleName string

	// Persona is the role's free-text persona description. May be empty.
	Persona string

	// Text is the user's utterance.
	Text string
}

// Generator produces the role's reply text for a user utterance.
type Generator interface {
	// Reply returns the role's textual reply to req.Text. Implementations
	// must respect ctx cancellation.
	Reply(ctx context.Context, req Request) (string, error)
}

// Echo is the default Generator: it returns the user's text unchanged.
type Echo struct{}

// Reply implements Generator by echoing req.Text.
func (Echo) Reply(_ context.Context, req Request) (string, error) {
	return req.Text, nil
}
