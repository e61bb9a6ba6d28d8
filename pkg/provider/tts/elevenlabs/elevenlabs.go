// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs REST API. It implements the tts.Provider interface: the audio
// returned by the API is written to an [AudioSink] and the sink's public URL
// is reported back to the caller.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gumelab/gume/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_flash_v2_5"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

// AudioSink persists a synthesised audio blob and returns the URL under which
// it can be fetched. Implementations must be safe for concurrent use.
type AudioSink interface {
	Store(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API endpoint. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
//
// Voice params read from the role configuration:
//
//	voice_id  (string)  — ElevenLabs voice identifier; falls back to a default voice
//	stability (number)  — voice_settings.stability, default 0.5
//	similarity (number) — voice_settings.similarity_boost, default 0.75
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	sink       AudioSink
	httpClient *http.Client
}

// Compile-time interface check.
var _ tts.Provider = (*Provider)(nil)

// New creates an ElevenLabs Provider. apiKey must be non-empty and sink must
// not be nil.
func New(apiKey string, sink AudioSink, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if sink == nil {
		return nil, errors.New("elevenlabs: sink must not be nil")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		sink:       sink,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeRequest is the JSON body for POST /v1/text-to-speech/{voice_id}.
type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize calls the ElevenLabs API, stores the returned audio in the sink,
// and reports the sink URL. Failures are wrapped in [*tts.ProviderError].
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.VoiceParams) (*tts.Result, error) {
	voiceID := params.String("voice_id")
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	body := synthesizeRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: voiceSettings{
			Stability:       paramOrDefault(params, "stability", 0.5),
			SimilarityBoost: paramOrDefault(params, "similarity", 0.75),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, p.fail(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", p.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, p.fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.fail(fmt.Errorf("synthesize HTTP: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, p.fail(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.fail(fmt.Errorf("read audio: %w", err))
	}

	name := uuid.NewString() + ".mp3"
	audioURL, err := p.sink.Store(ctx, name, "audio/mpeg", audio)
	if err != nil {
		return nil, p.fail(fmt.Errorf("store audio: %w", err))
	}

	return &tts.Result{
		AudioURL: audioURL,
		Metadata: map[string]any{
			"provider":   "elevenlabs",
			"model":      p.model,
			"voice_id":   voiceID,
			"bytes":      len(audio),
			"latency_ms": time.Since(start).Milliseconds(),
		},
	}, nil
}

// fail wraps err in a tts.ProviderError attributed to this provider.
func (p *Provider) fail(err error) error {
	return &tts.ProviderError{Provider: "elevenlabs", Err: err}
}

// paramOrDefault reads a numeric voice param, substituting def when the key
// is absent or zero.
func paramOrDefault(params tts.VoiceParams, key string, def float64) float64 {
	if v := params.Float(key); v != 0 {
		return v
	}
	return def
}
