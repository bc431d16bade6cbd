package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func init() {
	Backends.Register("deepgram", func(config Config) (Transcriber, error) {
		return NewDeepgram(config)
	})
}

// Deepgram implements Transcriber using the Deepgram pre-recorded
// /v1/listen API.
type Deepgram struct {
	apiKey  string
	baseURL string
	model   string
}

// NewDeepgram builds a Deepgram backend. Required key: api_key. Optional:
// base_url, model (default "nova-2").
func NewDeepgram(config Config) (*Deepgram, error) {
	d := &Deepgram{
		apiKey:  config.Get("api_key", "deepgram_api_key"),
		baseURL: strings.TrimRight(config.Get("base_url", "url"), "/"),
		model:   config.Get("model"),
	}
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: api_key required")
	}
	if d.baseURL == "" {
		d.baseURL = "https://api.deepgram.com"
	}
	if d.model == "" {
		d.model = "nova-2"
	}
	return d, nil
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, fmt.Errorf("deepgram: %w: empty audio", ErrInvalidRequest)
	}
	params := url.Values{}
	params.Set("model", d.model)
	params.Set("smart_format", "true")
	if req.Language != "" {
		params.Set("language", req.Language)
	}
	headers := map[string]string{
		"Authorization": "Token " + d.apiKey,
		"Content-Type":  "audio/wav",
	}

	var resp deepgramResponse
	if err := doRaw(ctx, nil, d.Name(), http.MethodPost, d.baseURL+"/v1/listen?"+params.Encode(), headers, bytes.NewReader(req.Audio), &resp); err != nil {
		return Result{}, err
	}
	if len(resp.Results.Channels) > 0 && len(resp.Results.Channels[0].Alternatives) > 0 {
		return Result{Text: strings.TrimSpace(resp.Results.Channels[0].Alternatives[0].Transcript), Language: req.Language}, nil
	}
	return Result{Language: req.Language}, nil
}

// HealthCheck only verifies configuration.
func (d *Deepgram) HealthCheck(ctx context.Context) (bool, error) {
	return d.apiKey != "", nil
}

func (d *Deepgram) Name() string {
	return "deepgram"
}
