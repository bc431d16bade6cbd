package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
	"github.com/houzhh15/speech-corpus/pkg/logger"
)

func subcommand(t *testing.T, name string, args ...string) *cobra.Command {
	t.Helper()
	root := newRootCmd()
	cmd, _, err := root.Find([]string{name})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.Split.FrameLengthMs)
	assert.Equal(t, 50, cfg.Split.FrameShiftMs)
	assert.Equal(t, 0.7, cfg.Split.QFactor)
	assert.Equal(t, 5, cfg.Align.QFactor)
	assert.Equal(t, 70, cfg.Align.QMax)
	assert.Equal(t, 5, cfg.Align.QStep)
	assert.Equal(t, "yandex", cfg.Transcribe.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Transcribe.Timeout)
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
split:
  input: book.mp3
  prefix: yaml
  format: ogg
  q_factor: 0.5
transcribe:
  backend: whisper
  timeout: 30s
  whisper:
    url: http://whisper:80
`), 0o644))

	t.Setenv("CORPUS_SPLIT_PREFIX", "env")
	t.Setenv("CORPUS_SPLIT_FRAME_SHIFT_MS", "25")
	t.Setenv("CORPUS_TRANSCRIBE_YANDEX_IAM_TOKEN", "t0ken")

	cmd := subcommand(t, "split", "--config", path, "--prefix", "flag", "--limit", "12.5")
	cfg, err := LoadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "book.mp3", cfg.Split.Input)
	assert.Equal(t, "flag", cfg.Split.Prefix, "flags override environment")
	assert.Equal(t, 25, cfg.Split.FrameShiftMs, "environment overrides defaults")
	assert.Equal(t, "ogg", cfg.Split.Format)
	assert.Equal(t, 0.5, cfg.Split.QFactor)
	assert.Equal(t, 12.5, cfg.Split.LimitSeconds)
	assert.Equal(t, 1000, cfg.Split.FrameLengthMs, "defaults survive")
	assert.Equal(t, "whisper", cfg.Transcribe.Backend)
	assert.Equal(t, 30*time.Second, cfg.Transcribe.Timeout)
	assert.Equal(t, "http://whisper:80", cfg.Transcribe.BackendConfigs()["whisper"]["url"])
	assert.Equal(t, "t0ken", cfg.Transcribe.Yandex.IAMToken)
	require.NoError(t, cfg.Validate("split"))
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		cmd := subcommand(t, "split", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadConfig(cmd)
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("split:\n  prefx: x\n"), 0o644))
		_, err := LoadConfig(subcommand(t, "split", "--config", path))
		assert.ErrorContains(t, err, "prefx")
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		cfg, err := LoadConfig(subcommand(t, "split", "--config", path))
		require.NoError(t, err)
		assert.Equal(t, "file", cfg.Split.Prefix)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Split.Format = "aac"
	cfg.Split.QFactor = 0
	err := cfg.Validate("split")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "split.input")
	assert.Contains(t, msg, "split.format")
	assert.Contains(t, msg, "split.q_factor")

	cfg = DefaultConfig()
	cfg.Transcribe.Backend = "nope"
	cfg.Transcribe.Language = "!!"
	cfg.Transcribe.Workers = 0
	err = cfg.Validate("transcribe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcribe.backend")
	assert.Contains(t, err.Error(), "transcribe.language")
	assert.Contains(t, err.Error(), "transcribe.workers")

	cfg = DefaultConfig()
	cfg.Transcribe.Fallback = "yandex"
	assert.ErrorContains(t, cfg.Validate("transcribe"), "must differ")

	cfg = DefaultConfig()
	assert.ErrorContains(t, cfg.Validate("align"), "align.source")
	cfg.Align.Source = "book.txt"
	assert.NoError(t, cfg.Validate("align"))
}

func TestLogSettingsHidesSecrets(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Output = &buf
	cfg.Transcribe.Yandex.IAMToken = "super-secret-token"
	cfg.Transcribe.OpenAI.APIKey = "sk-secret"

	l, _, err := logger.New(cfg.Log)
	require.NoError(t, err)
	cfg.LogSettings(l, "transcribe")

	out := buf.String()
	assert.NotContains(t, out, "super-secret-token")
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "[hidden]")
}

// writeRecording writes silence/tone/silence/tone/silence, one second each.
func writeRecording(t *testing.T, path string) {
	t.Helper()
	const rate = 16000
	var samples []float64
	for i := 0; i < 2; i++ {
		samples = append(samples, make([]float64, rate)...)
		for j := 0; j < rate; j++ {
			samples = append(samples, 0.6*math.Sin(2*math.Pi*440*float64(j)/rate))
		}
	}
	samples = append(samples, make([]float64, rate)...)
	require.NoError(t, audio.Codec{}.Save(context.Background(), path, audio.Clip{Samples: samples, SampleRate: rate}))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.wav")
	writeRecording(t, input)
	source := filepath.Join(dir, "book.txt")
	require.NoError(t, os.WriteFile(source, []byte("The quick brown fox."), 0o644))

	chunks := filepath.Join(dir, "output")
	corpusPath := filepath.Join(chunks, "result.json")
	textfile := filepath.Join(dir, "corpus.prom")

	_, err := execute(t, "split", "--input", input, "--output-dir", chunks, "--prefix", "book",
		"--corpus", corpusPath, "--frame-length", "20", "--frame-shift", "10", "--metrics-textfile", textfile)
	require.NoError(t, err)

	corpus, err := store.New(corpusPath).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"book_00000.wav", "book_00001.wav"}, corpus.IDs())

	t.Setenv("CORPUS_TRANSCRIBE_MOCK_TEXT", "quik brown fox")
	_, err = execute(t, "transcribe", "--input-dir", chunks, "--corpus", corpusPath, "--backend", "mock", "--language", "en-US")
	require.NoError(t, err)

	_, err = execute(t, "align", "--source", source, "--corpus", corpusPath, "--language", "en")
	require.NoError(t, err)

	corpus, err = store.New(corpusPath).Load(context.Background())
	require.NoError(t, err)
	for _, id := range corpus.IDs() {
		rec := corpus[id]
		require.NotNil(t, rec.ASR, id)
		assert.Equal(t, "quik brown fox", *rec.ASR)
		require.NotNil(t, rec.Found, id)
		assert.Equal(t, "quick brown fox", *rec.Found)
		assert.Equal(t, 1, *rec.Diff)
		assert.Equal(t, 4, *rec.Shift)
	}

	out, err := execute(t, "report", "--corpus", corpusPath, "--output", "json")
	require.NoError(t, err)
	var r struct {
		Chunks     int `json:"chunks"`
		Aligned    int `json:"aligned"`
		Duplicates []struct {
			IDs []string `json:"ids"`
		} `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 2, r.Chunks)
	assert.Equal(t, 2, r.Aligned)
	require.Len(t, r.Duplicates, 1)

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(prom), "corpus_chunk_outcomes_total"))

	_, err = execute(t, "split", "--input", input, "--output-dir", chunks, "--prefix", "book",
		"--corpus", corpusPath, "--frame-length", "20", "--frame-shift", "10")
	assert.Error(t, err, "split refuses an existing corpus")
}
