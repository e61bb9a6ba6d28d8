// Package dummy provides the fallback TTS provider. It fabricates a stable
// audio URL from the input text without contacting any synthesis service,
// which keeps the relay functional in development and when a role's
// configured provider is unavailable.
package dummy

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/gumelab/gume/pkg/provider/tts"
)

const defaultBaseURL = "https://example.com/audio"

// Option is a functional option for configuring the dummy Provider.
type Option func(*Provider)

// WithBaseURL overrides the base URL under which fabricated audio URLs are
// rooted.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements tts.Provider by deriving a deterministic URL from the
// text. The same text always yields the same URL.
type Provider struct {
	baseURL string
}

// Compile-time interface check.
var _ tts.Provider = (*Provider)(nil)

// New creates a dummy Provider.
func New(opts ...Option) *Provider {
	p := &Provider{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize fabricates an audio URL from a hash of text. params is ignored.
func (p *Provider) Synthesize(_ context.Context, text string, _ tts.VoiceParams) (*tts.Result, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	return &tts.Result{
		AudioURL: fmt.Sprintf("%s/%x.mp3", p.baseURL, h.Sum64()),
		Metadata: map[string]any{
			"provider": "dummy",
			"len":      len(text),
		},
	}, nil
}
