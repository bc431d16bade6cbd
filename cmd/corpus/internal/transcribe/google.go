package transcribe

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
)

const (
	googleDefaultURL = "https://speech.googleapis.com/v1/speech:recognize"
	googleScope      = "https://www.googleapis.com/auth/cloud-platform"
)

func init() {
	Backends.Register("google", func(config Config) (Transcriber, error) {
		return NewGoogle(context.Background(), config)
	})
}

// Google implements Transcriber using the Google Cloud Speech-to-Text v1
// REST API with LINEAR16 audio.
//
// Credentials come from api_key when set, otherwise from Application
// Default Credentials (GOOGLE_APPLICATION_CREDENTIALS, gcloud, metadata
// server) through golang.org/x/oauth2/google.
type Google struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewGoogle builds a Google backend. Optional keys: api_key, model, url.
func NewGoogle(ctx context.Context, config Config) (*Google, error) {
	g := &Google{
		endpoint: config.Get("url", "base_url"),
		apiKey:   config.Get("api_key"),
		model:    config.Get("model"),
		client:   defaultHTTPClient,
	}
	if g.endpoint == "" {
		g.endpoint = googleDefaultURL
	}
	if g.apiKey == "" {
		ts, err := google.DefaultTokenSource(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("google: api_key or application default credentials required: %w", err)
		}
		g.client = oauth2.NewClient(ctx, ts)
	}
	return g, nil
}

type googleRecognizeRequest struct {
	Config googleRecognizeConfig `json:"config"`
	Audio  googleRecognizeAudio  `json:"audio"`
}

type googleRecognizeConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
	Model           string `json:"model,omitempty"`
}

type googleRecognizeAudio struct {
	Content string `json:"content"`
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float32 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe joins the top alternative of every result. An empty results
// list means no speech.
func (g *Google) Transcribe(ctx context.Context, req Request) (Result, error) {
	clip, err := audio.DecodeWAVBytes(req.Audio)
	if err != nil {
		return Result{}, fmt.Errorf("google: %w: %v", ErrInvalidRequest, err)
	}

	body := googleRecognizeRequest{
		Config: googleRecognizeConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: clip.SampleRate,
			LanguageCode:    req.Language,
			Model:           g.model,
		},
		Audio: googleRecognizeAudio{
			Content: base64.StdEncoding.EncodeToString(audio.PCM16(clip)),
		},
	}

	// The key travels in a header so transport errors, which quote the
	// URL, never carry it into logs.
	headers := map[string]string{}
	if g.apiKey != "" {
		headers["X-Goog-Api-Key"] = g.apiKey
	}

	var resp googleRecognizeResponse
	if err := doJSON(ctx, g.client, g.Name(), http.MethodPost, g.endpoint, headers, body, &resp); err != nil {
		return Result{}, err
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) > 0 {
			if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return Result{Text: strings.Join(parts, " "), Language: req.Language}, nil
}

// HealthCheck only verifies configuration.
func (g *Google) HealthCheck(ctx context.Context) (bool, error) {
	return g.endpoint != "", nil
}

func (g *Google) Name() string {
	return "google"
}
