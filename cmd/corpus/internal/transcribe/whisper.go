package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

func init() {
	Backends.Register("whisper", func(config Config) (Transcriber, error) {
		return NewGoWhisper(config)
	})
}

// GoWhisper implements Transcriber for a go-whisper HTTP service
// (ghcr.io/mutablelogic/go-whisper). It sends multipart/form-data requests
// to /api/whisper/transcribe.
type GoWhisper struct {
	apiURL string // Base URL of the go-whisper service (e.g., "http://whisper:80")
	model  string
}

// NewGoWhisper builds a go-whisper backend. Required key: url. Optional:
// model (default "ggml-base").
func NewGoWhisper(config Config) (*GoWhisper, error) {
	g := &GoWhisper{
		apiURL: strings.TrimRight(config.Get("url", "base_url"), "/"),
		model:  config.Get("model"),
	}
	if g.apiURL == "" {
		return nil, fmt.Errorf("whisper: url required")
	}
	if g.model == "" {
		g.model = "ggml-base"
	}
	return g, nil
}

type goWhisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type goWhisperResponse struct {
	Segments []goWhisperSegment `json:"segments"`
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
}

// Transcribe performs audio transcription by sending a multipart/form-data request.
//
// Implementation details:
//   - Constructs a multipart request with audio, model, language fields
//   - Temperature is fixed at 0.0 to reduce hallucinations on short chunks
//   - Falls back to joining segment texts when the top-level text is empty
//
// API endpoint: POST {apiURL}/api/whisper/transcribe
func (g *GoWhisper) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, fmt.Errorf("whisper: %w: empty audio", ErrInvalidRequest)
	}
	body, contentType, err := multipartAudio("audio", req.Filename, req.Audio, [][2]string{
		{"model", g.model},
		{"response_format", "json"},
		{"language", baseLanguage(req.Language)},
		{"temperature", "0.0"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("whisper: %w", err)
	}

	var resp goWhisperResponse
	headers := map[string]string{"Content-Type": contentType}
	if err := doRaw(ctx, nil, g.Name(), http.MethodPost, g.apiURL+"/api/whisper/transcribe", headers, body, &resp); err != nil {
		return Result{}, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" && len(resp.Segments) > 0 {
		parts := make([]string, 0, len(resp.Segments))
		for _, s := range resp.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}
	return Result{Text: text, Language: resp.Language}, nil
}

// HealthCheck verifies that the go-whisper service is operational.
//
// Implementation:
//   - Sends GET request to /api/whisper/model endpoint (go-whisper standard)
//   - Returns true if service responds with 200 OK
func (g *GoWhisper) HealthCheck(ctx context.Context) (bool, error) {
	if err := doRaw(ctx, nil, g.Name(), http.MethodGet, g.apiURL+"/api/whisper/model", nil, nil, nil); err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	return true, nil
}

func (g *GoWhisper) Name() string {
	return "whisper"
}
