package tts

import "fmt"

// VoiceParams carries provider-specific voice configuration for a synthesis
// request. The map is stored opaquely on the role and passed through to the
// provider unchanged; each provider documents the keys it reads.
type VoiceParams map[string]any

// String returns the string value stored under key, or "" if the key is
// absent or holds a non-string value.
func (p VoiceParams) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Float returns the float value stored under key. YAML and JSON decoders may
// produce int or float64 for numeric values; both are accepted. Returns 0 if
// the key is absent or holds a non-numeric value.
func (p VoiceParams) Float(key string) float64 {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Result is the outcome of a successful synthesis request.
type Result struct {
	// AudioURL is where the synthesised audio can be fetched.
	AudioURL string

	// Metadata holds provider-specific extras: timings, token consumption,
	// debug information. May be nil.
	Metadata map[string]any
}

// ProviderError wraps a failure reported by a TTS backend. Use errors.As to
// detect it and inspect which provider failed.
type ProviderError struct {
	// Provider is the registry key of the failing provider.
	Provider string

	// Err is the underlying cause.
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts provider %q: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
