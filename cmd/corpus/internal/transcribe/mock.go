package transcribe

import (
	"context"
	"strings"
	"sync"
)

func init() {
	Backends.Register("mock", func(config Config) (Transcriber, error) {
		return NewMock(config.Get("text"), nil), nil
	})
}

// Mock is an offline Transcriber for dry runs and tests. It answers from a
// per-file table, falling back to a fixed text; an empty answer reads as
// "no speech". Failures can be injected per file.
type Mock struct {
	text    string
	byFile  map[string]string
	mu      sync.Mutex
	errs    map[string][]error
	calls   map[string]int
	healthy bool
}

// NewMock returns a Mock answering text for every file not in byFile.
func NewMock(text string, byFile map[string]string) *Mock {
	return &Mock{
		text:    text,
		byFile:  byFile,
		errs:    make(map[string][]error),
		calls:   make(map[string]int),
		healthy: true,
	}
}

// FailWith queues errors returned by successive calls for filename before
// the normal answer.
func (m *Mock) FailWith(filename string, errs ...error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[filename] = append(m.errs[filename], errs...)
	return m
}

// SetHealthy controls the HealthCheck answer.
func (m *Mock) SetHealthy(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = ok
}

// Calls returns how many times filename was transcribed.
func (m *Mock) Calls(filename string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[filename]
}

func (m *Mock) Transcribe(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	m.calls[req.Filename]++
	if queued := m.errs[req.Filename]; len(queued) > 0 {
		m.errs[req.Filename] = queued[1:]
		m.mu.Unlock()
		return Result{}, queued[0]
	}
	m.mu.Unlock()

	text := m.text
	if t, ok := m.byFile[req.Filename]; ok {
		text = t
	}
	return Result{Text: strings.TrimSpace(text), Language: req.Language}, nil
}

func (m *Mock) HealthCheck(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy, nil
}

func (m *Mock) Name() string {
	return "mock"
}
