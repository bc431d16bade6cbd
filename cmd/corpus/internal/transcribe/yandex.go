package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
)

const yandexDefaultURL = "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"

func init() {
	Backends.Register("yandex", func(config Config) (Transcriber, error) {
		return NewYandex(config)
	})
}

// Yandex implements Transcriber for Yandex SpeechKit short audio
// recognition (v1 REST). Audio is sent as raw LPCM.
//
// Authentication uses either an IAM token (Bearer, through an oauth2
// static token source) or a service account API key.
type Yandex struct {
	endpoint string
	folderID string
	topic    string
	apiKey   string
	client   *http.Client
}

// NewYandex builds a Yandex backend. Required keys: folder_id and one of
// iam_token or api_key. Optional: url, topic (default "general").
func NewYandex(config Config) (*Yandex, error) {
	y := &Yandex{
		endpoint: config.Get("url", "base_url"),
		folderID: config.Get("folder_id"),
		topic:    config.Get("topic"),
		apiKey:   config.Get("api_key"),
		client:   defaultHTTPClient,
	}
	if y.endpoint == "" {
		y.endpoint = yandexDefaultURL
	}
	if y.topic == "" {
		y.topic = "general"
	}

	token := strings.TrimSpace(config.Get("iam_token"))
	switch {
	case token != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		y.client = oauth2.NewClient(context.Background(), ts)
		y.apiKey = ""
	case y.apiKey != "":
	default:
		return nil, fmt.Errorf("yandex: iam_token or api_key required")
	}
	if y.folderID == "" && token != "" {
		return nil, fmt.Errorf("yandex: folder_id required with iam_token")
	}
	return y, nil
}

type yandexResponse struct {
	Result       string `json:"result"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// yandexRates are the LPCM sample rates SpeechKit accepts.
var yandexRates = map[int]bool{8000: true, 16000: true, 48000: true}

// Transcribe sends the chunk as LPCM. Audio at other rates is resampled to
// 16 kHz first.
func (y *Yandex) Transcribe(ctx context.Context, req Request) (Result, error) {
	clip, err := audio.DecodeWAVBytes(req.Audio)
	if err != nil {
		return Result{}, fmt.Errorf("yandex: %w: %v", ErrInvalidRequest, err)
	}
	if !yandexRates[clip.SampleRate] {
		clip = audio.Clip{Samples: audio.Resample(clip.Samples, clip.SampleRate, 16000), SampleRate: 16000}
	}

	params := url.Values{}
	params.Set("topic", y.topic)
	params.Set("lang", req.Language)
	params.Set("format", "lpcm")
	params.Set("sampleRateHertz", strconv.Itoa(clip.SampleRate))
	if y.folderID != "" {
		params.Set("folderId", y.folderID)
	}

	headers := map[string]string{"Content-Type": "application/octet-stream"}
	if y.apiKey != "" {
		headers["Authorization"] = "Api-Key " + y.apiKey
	}

	var resp yandexResponse
	err = doRaw(ctx, y.client, y.Name(), http.MethodPost, y.endpoint+"?"+params.Encode(), headers, bytes.NewReader(audio.PCM16(clip)), &resp)
	if err != nil {
		return Result{}, err
	}
	if resp.ErrorCode != "" {
		return Result{}, &BackendError{
			Backend:   y.Name(),
			Code:      resp.ErrorCode,
			Message:   resp.ErrorMessage,
			Retryable: resp.ErrorCode == "INTERNAL_ERROR" || resp.ErrorCode == "UNAVAILABLE",
		}
	}
	return Result{Text: resp.Result, Language: req.Language}, nil
}

// HealthCheck only verifies configuration; SpeechKit has no probe endpoint.
func (y *Yandex) HealthCheck(ctx context.Context) (bool, error) {
	return y.endpoint != "", nil
}

func (y *Yandex) Name() string {
	return "yandex"
}
