package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/report"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/transcribe"
	"github.com/houzhh15/speech-corpus/pkg/logger"
)

// defaultConfigFile 未指定 --config 时若存在则自动加载
const defaultConfigFile = "corpus.yaml"

// envPrefix 环境变量前缀
const envPrefix = "CORPUS_"

// Config 保存 CLI 全部配置
// 优先级（从低到高）：默认值 -> YAML 配置文件 -> 环境变量 -> 命令行标志
type Config struct {
	Log        logger.Config    `yaml:"log" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Split      SplitConfig      `yaml:"split" envPrefix:"SPLIT_"`
	Transcribe TranscribeConfig `yaml:"transcribe" envPrefix:"TRANSCRIBE_"`
	Align      AlignConfig      `yaml:"align" envPrefix:"ALIGN_"`
	Serve      ServeConfig      `yaml:"serve" envPrefix:"SERVE_"`
}

type MetricsConfig struct {
	// Textfile 阶段结束时写入的 prometheus 文本文件，空表示不写
	Textfile string `yaml:"textfile" env:"TEXTFILE"`
}

type SplitConfig struct {
	Input         string  `yaml:"input" env:"INPUT"`
	OutputDir     string  `yaml:"output_dir" env:"OUTPUT_DIR"`
	Prefix        string  `yaml:"prefix" env:"PREFIX"`
	Format        string  `yaml:"format" env:"FORMAT"`
	FrameLengthMs int     `yaml:"frame_length_ms" env:"FRAME_LENGTH_MS"`
	FrameShiftMs  int     `yaml:"frame_shift_ms" env:"FRAME_SHIFT_MS"`
	QFactor       float64 `yaml:"q_factor" env:"Q_FACTOR"`
	SampleRate    int     `yaml:"sample_rate" env:"SAMPLE_RATE"`
	LimitSeconds  float64 `yaml:"limit_seconds" env:"LIMIT_SECONDS"`
	Corpus        string  `yaml:"corpus" env:"CORPUS"`
	FFmpeg        string  `yaml:"ffmpeg" env:"FFMPEG"`
}

type TranscribeConfig struct {
	InputDir        string        `yaml:"input_dir" env:"INPUT_DIR"`
	Corpus          string        `yaml:"corpus" env:"CORPUS"`
	Backend         string        `yaml:"backend" env:"BACKEND"`
	Fallback        string        `yaml:"fallback" env:"FALLBACK"`
	Language        string        `yaml:"language" env:"LANGUAGE"`
	Limit           int           `yaml:"limit" env:"LIMIT"`
	Workers         int           `yaml:"workers" env:"WORKERS"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries      uint          `yaml:"max_retries" env:"MAX_RETRIES"`
	BreakerFailures uint32        `yaml:"breaker_failures" env:"BREAKER_FAILURES"`
	SampleRate      int           `yaml:"sample_rate" env:"SAMPLE_RATE"`
	FFmpeg          string        `yaml:"ffmpeg" env:"FFMPEG"`

	Yandex   YandexConfig   `yaml:"yandex" envPrefix:"YANDEX_"`
	Google   GoogleConfig   `yaml:"google" envPrefix:"GOOGLE_"`
	OpenAI   OpenAIConfig   `yaml:"openai" envPrefix:"OPENAI_"`
	Whisper  WhisperConfig  `yaml:"whisper" envPrefix:"WHISPER_"`
	Deepgram DeepgramConfig `yaml:"deepgram" envPrefix:"DEEPGRAM_"`
	Mock     MockConfig     `yaml:"mock" envPrefix:"MOCK_"`
}

type YandexConfig struct {
	IAMToken string `yaml:"iam_token" env:"IAM_TOKEN"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	FolderID string `yaml:"folder_id" env:"FOLDER_ID"`
	URL      string `yaml:"url" env:"URL"`
}

type GoogleConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY"`
	Model  string `yaml:"model" env:"MODEL"`
	URL    string `yaml:"url" env:"URL"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
}

type WhisperConfig struct {
	URL   string `yaml:"url" env:"URL"`
	Model string `yaml:"model" env:"MODEL"`
}

type DeepgramConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
}

type MockConfig struct {
	Text string `yaml:"text" env:"TEXT"`
}

type AlignConfig struct {
	Source   string `yaml:"source" env:"SOURCE"`
	Corpus   string `yaml:"corpus" env:"CORPUS"`
	QFactor  int    `yaml:"q_factor" env:"Q_FACTOR"`
	QMax     int    `yaml:"q_max" env:"Q_MAX"`
	QStep    int    `yaml:"q_step" env:"Q_STEP"`
	Language string `yaml:"language" env:"LANGUAGE"`
	Workers  int    `yaml:"workers" env:"WORKERS"`
}

type ServeConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Corpus    string `yaml:"corpus" env:"CORPUS"`
	ChunksDir string `yaml:"chunks_dir" env:"CHUNKS_DIR"`
	Threshold int    `yaml:"threshold" env:"THRESHOLD"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	policy := transcribe.DefaultPolicy()
	return &Config{
		Log: logger.Config{Level: "info", Format: "console"},
		Split: SplitConfig{
			OutputDir:     "output",
			Prefix:        "file",
			Format:        "wav",
			FrameLengthMs: 1000,
			FrameShiftMs:  50,
			QFactor:       0.7,
			Corpus:        "output/result.json",
			FFmpeg:        "ffmpeg",
		},
		Transcribe: TranscribeConfig{
			InputDir:        "output",
			Corpus:          "output/result.json",
			Backend:         "yandex",
			Language:        "ru-RU",
			Workers:         1,
			Timeout:         policy.Timeout,
			MaxRetries:      policy.MaxTries,
			BreakerFailures: policy.BreakerFailures,
			SampleRate:      48000,
			FFmpeg:          "ffmpeg",
		},
		Align: AlignConfig{
			Corpus:  "output/result.json",
			QFactor: 5,
			QMax:    70,
			QStep:   5,
			Workers: 1,
		},
		Serve: ServeConfig{
			Addr:      ":8090",
			Corpus:    "output/result.json",
			ChunksDir: "output",
			Threshold: report.DefaultThreshold,
		},
	}
}

// LoadConfig 从默认值、配置文件、环境变量、命令行标志加载配置
func LoadConfig(cmd *cobra.Command) (*Config, error) {
	cfg := DefaultConfig()

	path, _ := cmd.Flags().GetString("config")
	if err := loadConfigFile(cfg, path); err != nil {
		return nil, err
	}

	// 环境变量覆盖配置文件
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// 命令行标志覆盖环境变量
	applyFlags(cmd, cfg)
	return cfg, nil
}

// loadConfigFile 读取 YAML 配置；path 为空时尝试 corpus.yaml，不存在则跳过
func loadConfigFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyFlags 仅覆盖命令行中显式设置的标志
func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	integer := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	float := func(name string, dst *float64) {
		if flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}

	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	str("log-file", &cfg.Log.File)
	str("metrics-textfile", &cfg.Metrics.Textfile)

	switch cmd.Name() {
	case "split":
		str("input", &cfg.Split.Input)
		str("output-dir", &cfg.Split.OutputDir)
		str("prefix", &cfg.Split.Prefix)
		str("format", &cfg.Split.Format)
		str("corpus", &cfg.Split.Corpus)
		integer("frame-length", &cfg.Split.FrameLengthMs)
		integer("frame-shift", &cfg.Split.FrameShiftMs)
		float("q-factor", &cfg.Split.QFactor)
		integer("sample-rate", &cfg.Split.SampleRate)
		float("limit", &cfg.Split.LimitSeconds)
	case "transcribe":
		str("input-dir", &cfg.Transcribe.InputDir)
		str("corpus", &cfg.Transcribe.Corpus)
		str("backend", &cfg.Transcribe.Backend)
		str("fallback", &cfg.Transcribe.Fallback)
		str("language", &cfg.Transcribe.Language)
		integer("limit", &cfg.Transcribe.Limit)
		integer("workers", &cfg.Transcribe.Workers)
		integer("sample-rate", &cfg.Transcribe.SampleRate)
		if flags.Changed("timeout") {
			cfg.Transcribe.Timeout, _ = flags.GetDuration("timeout")
		}
	case "align":
		str("source", &cfg.Align.Source)
		str("corpus", &cfg.Align.Corpus)
		str("language", &cfg.Align.Language)
		integer("q-factor", &cfg.Align.QFactor)
		integer("q-max", &cfg.Align.QMax)
		integer("q-step", &cfg.Align.QStep)
		integer("workers", &cfg.Align.Workers)
	case "serve":
		str("addr", &cfg.Serve.Addr)
		str("corpus", &cfg.Serve.Corpus)
		str("chunks-dir", &cfg.Serve.ChunksDir)
	case "report":
		str("corpus", &cfg.Serve.Corpus)
		integer("threshold", &cfg.Serve.Threshold)
	}
}

// Validate 校验指定阶段所需的配置，汇总全部问题
func (c *Config) Validate(stage string) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch stage {
	case "split":
		s := c.Split
		if s.Input == "" {
			add("split.input cannot be empty")
		}
		if s.Prefix == "" {
			add("split.prefix cannot be empty")
		}
		if !audio.IsOutputFormat(s.Format) {
			add("split.format %q is not supported", s.Format)
		}
		if s.FrameLengthMs <= 0 || s.FrameShiftMs <= 0 {
			add("split.frame_length_ms and split.frame_shift_ms must be greater than 0")
		}
		if s.QFactor <= 0 {
			add("split.q_factor must be greater than 0")
		}
		if s.SampleRate < 0 || s.LimitSeconds < 0 {
			add("split.sample_rate and split.limit_seconds cannot be negative")
		}
		if s.Corpus == "" {
			add("split.corpus cannot be empty")
		}
	case "transcribe":
		t := c.Transcribe
		if t.InputDir == "" || t.Corpus == "" {
			add("transcribe.input_dir and transcribe.corpus cannot be empty")
		}
		if !transcribe.Backends.Has(t.Backend) {
			add("transcribe.backend %q is unknown (available: %v)", t.Backend, transcribe.Backends.List())
		}
		if t.Fallback != "" && !transcribe.Backends.Has(t.Fallback) {
			add("transcribe.fallback %q is unknown", t.Fallback)
		}
		if t.Fallback != "" && t.Fallback == t.Backend {
			add("transcribe.fallback must differ from transcribe.backend")
		}
		if _, err := transcribe.ParseLanguage(t.Language); err != nil {
			add("transcribe.language: %v", err)
		}
		if t.Workers <= 0 {
			add("transcribe.workers must be greater than 0")
		}
		if t.Limit < 0 || t.SampleRate < 0 {
			add("transcribe.limit and transcribe.sample_rate cannot be negative")
		}
		if t.MaxRetries == 0 {
			add("transcribe.max_retries must be greater than 0")
		}
	case "align":
		a := c.Align
		if a.Source == "" || a.Corpus == "" {
			add("align.source and align.corpus cannot be empty")
		}
		if a.Language != "" {
			if _, err := transcribe.ParseLanguage(a.Language); err != nil {
				add("align.language: %v", err)
			}
		}
		if a.Workers <= 0 {
			add("align.workers must be greater than 0")
		}
	case "serve", "report":
		if c.Serve.Corpus == "" {
			add("serve.corpus cannot be empty")
		}
		if stage == "serve" && c.Serve.Addr == "" {
			add("serve.addr cannot be empty")
		}
	}
	return errors.Join(errs...)
}

// BackendConfigs 将各后端配置转换为 transcribe.Config
func (t TranscribeConfig) BackendConfigs() map[string]transcribe.Config {
	return map[string]transcribe.Config{
		"yandex": {
			"iam_token": t.Yandex.IAMToken,
			"api_key":   t.Yandex.APIKey,
			"folder_id": t.Yandex.FolderID,
			"url":       t.Yandex.URL,
		},
		"google": {
			"api_key": t.Google.APIKey,
			"model":   t.Google.Model,
			"url":     t.Google.URL,
		},
		"openai": {
			"api_key":  t.OpenAI.APIKey,
			"base_url": t.OpenAI.BaseURL,
			"model":    t.OpenAI.Model,
		},
		"whisper": {
			"url":   t.Whisper.URL,
			"model": t.Whisper.Model,
		},
		"deepgram": {
			"api_key":  t.Deepgram.APIKey,
			"base_url": t.Deepgram.BaseURL,
			"model":    t.Deepgram.Model,
		},
		"mock": {
			"text": t.Mock.Text,
		},
	}
}

// LogSettings 输出阶段设置，密钥以 [hidden] 代替
func (c *Config) LogSettings(l *slog.Logger, stage string) {
	switch stage {
	case "split":
		s := c.Split
		l.Info("settings",
			"input", s.Input, "output_dir", s.OutputDir, "prefix", s.Prefix, "format", s.Format,
			"frame_length_ms", s.FrameLengthMs, "frame_shift_ms", s.FrameShiftMs, "q_factor", s.QFactor,
			"sample_rate", s.SampleRate, "limit_seconds", s.LimitSeconds, "corpus", s.Corpus,
		)
	case "transcribe":
		t := c.Transcribe
		l.Info("settings",
			"input_dir", t.InputDir, "corpus", t.Corpus, "backend", t.Backend, "fallback", t.Fallback,
			"language", t.Language, "limit", t.Limit, "workers", t.Workers, "timeout", t.Timeout,
			"max_retries", t.MaxRetries, "sample_rate", t.SampleRate,
			"yandex_iam_token", logger.Hidden(t.Yandex.IAMToken),
			"yandex_api_key", logger.Hidden(t.Yandex.APIKey),
			"yandex_folder_id", logger.Hidden(t.Yandex.FolderID),
			"google_api_key", logger.Hidden(t.Google.APIKey),
			"openai_api_key", logger.Hidden(t.OpenAI.APIKey),
			"deepgram_api_key", logger.Hidden(t.Deepgram.APIKey),
		)
	case "align":
		a := c.Align
		l.Info("settings",
			"source", a.Source, "corpus", a.Corpus, "q_factor", a.QFactor, "q_max", a.QMax,
			"q_step", a.QStep, "language", a.Language, "workers", a.Workers,
		)
	case "serve", "report":
		s := c.Serve
		l.Info("settings", "addr", s.Addr, "corpus", s.Corpus, "chunks_dir", s.ChunksDir, "threshold", s.Threshold)
	}
}
