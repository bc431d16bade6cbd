// Package transcribe provides the speech-to-text capability used by the
// transcribe stage. It defines a backend-neutral Transcriber interface,
// concrete backends (Yandex SpeechKit, Google Speech-to-Text, OpenAI,
// go-whisper, Deepgram and an offline mock), a registry that selects a
// backend by configured name, and the Dispatcher that drives a whole pass
// over a chunk directory.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrInvalidRequest marks a request the backend can never accept
// (missing audio, unsupported sample rate). It is never retried.
var ErrInvalidRequest = errors.New("invalid transcription request")

// Request is one chunk submitted for transcription.
type Request struct {
	// Audio is a 16-bit PCM mono WAV document.
	Audio []byte

	// SampleRate is the sample rate of Audio in Hz.
	SampleRate int

	// Language is a BCP 47 tag such as "ru-RU" or "en-US".
	Language string

	// Filename is the chunk file name, used for logging and multipart uploads.
	Filename string
}

// Result is the outcome of a successful backend call.
//
// A Result with empty Text means the backend processed the audio and found
// no speech. Failures are always reported through the error return, never
// through an empty Result, so callers can tell "retry or give up" apart from
// "nothing to transcribe".
type Result struct {
	// Text is the recognized transcript (may be empty).
	Text string `json:"text"`

	// Language is the language reported by the backend, if any.
	Language string `json:"language,omitempty"`
}

// NoSpeech reports whether the backend found no speech in the audio.
func (r Result) NoSpeech() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Transcriber is the capability every backend implements.
//
// Implementations must:
//   - respect ctx cancellation and deadlines
//   - return an error (wrapping *StatusError for HTTP failures) on failure
//   - return a Result with empty Text, and a nil error, when no speech is found
type Transcriber interface {
	// Transcribe converts one chunk to text.
	Transcribe(ctx context.Context, req Request) (Result, error)

	// HealthCheck verifies that the backend is reachable and configured.
	// It should be cheap; remote backends without a probe endpoint only
	// check their configuration.
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the backend identifier used in logs and metrics.
	Name() string
}

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.StatusCode, strings.TrimSpace(e.Body))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// Retryable classifies an error returned by a Transcriber.
//
// HTTP 429, 408 and 5xx responses, timeouts and network errors are
// retryable; other HTTP statuses, invalid requests and cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return true
}

// BackendError is an application-level error reported inside a 2xx
// response body (for example Yandex "error_code").
type BackendError struct {
	Backend   string
	Code      string
	Message   string
	Retryable bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Code, e.Message)
}
