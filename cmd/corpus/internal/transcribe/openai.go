package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

func init() {
	Backends.Register("openai", func(config Config) (Transcriber, error) {
		return NewOpenAI(config)
	})
}

// OpenAI implements Transcriber using the OpenAI-compatible
// /audio/transcriptions endpoint.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
}

// NewOpenAI builds an OpenAI backend. Required key: api_key. Optional:
// base_url (default https://api.openai.com/v1), model (default whisper-1).
func NewOpenAI(config Config) (*OpenAI, error) {
	o := &OpenAI{
		apiKey:  config.Get("api_key", "openai_api_key"),
		baseURL: strings.TrimRight(config.Get("base_url", "openai_base_url"), "/"),
		model:   config.Get("model"),
	}
	if o.apiKey == "" {
		return nil, fmt.Errorf("openai: api_key required")
	}
	if o.baseURL == "" {
		o.baseURL = "https://api.openai.com/v1"
	}
	if o.model == "" {
		o.model = "whisper-1"
	}
	return o, nil
}

// Transcribe uploads the WAV chunk. The language is reduced to its ISO
// 639-1 base ("ru-RU" -> "ru") as the API expects.
func (o *OpenAI) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, fmt.Errorf("openai: %w: empty audio", ErrInvalidRequest)
	}
	body, contentType, err := multipartAudio("file", req.Filename, req.Audio, [][2]string{
		{"model", o.model},
		{"response_format", "json"},
		{"language", baseLanguage(req.Language)},
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  contentType,
	}
	var resp struct {
		Text string `json:"text"`
	}
	if err := doRaw(ctx, nil, o.Name(), http.MethodPost, o.baseURL+"/audio/transcriptions", headers, body, &resp); err != nil {
		return Result{}, err
	}
	return Result{Text: strings.TrimSpace(resp.Text), Language: req.Language}, nil
}

// HealthCheck only verifies configuration.
func (o *OpenAI) HealthCheck(ctx context.Context) (bool, error) {
	return o.apiKey != "", nil
}

func (o *OpenAI) Name() string {
	return "openai"
}
