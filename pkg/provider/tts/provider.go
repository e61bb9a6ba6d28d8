// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// dummy generator) and presents a uniform request/response interface: text in,
// a playable audio URL plus provider metadata out. The relay resolves a
// provider per role through the [Registry], which guarantees a fallback so
// that synthesis can always be attempted.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel (one per active chat session).
type Provider interface {
	// Synthesize turns text into audio and returns a URL where the audio can
	// be fetched, together with provider-specific metadata (timings, token
	// usage, debug info).
	//
	// params carries voice configuration taken verbatim from the role's
	// stored voice_params; providers read the keys they understand and ignore
	// the rest. A nil params map is valid and selects provider defaults.
	//
	// Errors are wrapped in [*ProviderError] so callers can distinguish
	// synthesis failures from transport or persistence failures.
	Synthesize(ctx context.Context, text string, params VoiceParams) (*Result, error)
}
