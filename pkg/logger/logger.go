package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 定义日志初始化配置
// Level 支持 debug/info/warn/error，Format 支持 console/json
// File 非空时额外写入按大小轮转的 JSON 日志文件
// WithSource 控制是否记录源码位置
type Config struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	File       string `yaml:"file" env:"FILE"`
	WithSource bool   `yaml:"with_source" env:"WITH_SOURCE"`
	NoColor    bool   `yaml:"no_color" env:"NO_COLOR"`

	// Output 控制台输出目标，默认 os.Stderr
	Output io.Writer `yaml:"-" env:"-"`
}

var (
	global *slog.Logger
	closer io.Closer
	once   sync.Once
)

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// New 根据配置创建新的 slog.Logger，不设置全局实例
// 返回的 io.Closer 用于关闭日志文件，未配置文件时为 nil
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource})
	case "", "console", "text":
		console = tint.NewHandler(out, &tint.Options{
			Level:      lvl,
			AddSource:  cfg.WithSource,
			TimeFormat: time.DateTime,
			NoColor:    cfg.NoColor || !isTerminal(out),
		})
	default:
		return nil, nil, errors.New("invalid log format: " + cfg.Format)
	}

	if cfg.File == "" {
		return slog.New(console), nil, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	file := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource})
	return slog.New(fanout{console, file}), rotator, nil
}

// Init 初始化全局日志实例并设置为 slog 默认 logger，重复调用将返回首次创建的 logger
func Init(cfg Config) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		global, closer, initErr = New(cfg)
		if initErr == nil {
			slog.SetDefault(global)
		}
	})
	return global, initErr
}

// L 返回已初始化的全局 logger，未初始化时 panic
func L() *slog.Logger {
	if global == nil {
		panic("logger.Init must be called before logger.L")
	}
	return global
}

// Close 关闭全局日志文件
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

// LogChunkEvent 记录切片处理事件的结构化日志
// stage: split/transcribe/align
// action: ok/skipped/failed/retry
// chunkID: 切片文件名
// durationMs: 处理耗时（毫秒）
// code: 失败原因代码（可选）
func LogChunkEvent(logger *slog.Logger, stage, action, chunkID string, durationMs int64, code string) {
	attrs := []slog.Attr{
		slog.String("stage", stage),
		slog.String("action", action),
		slog.String("chunk", chunkID),
		slog.Int64("duration_ms", durationMs),
	}

	switch {
	case code == "":
		logger.LogAttrs(context.Background(), slog.LevelInfo, "chunk processed", attrs...)
	case action == "skipped":
		attrs = append(attrs, slog.String("reason", code))
		logger.LogAttrs(context.Background(), slog.LevelWarn, "chunk skipped", attrs...)
	default:
		attrs = append(attrs, slog.String("error_code", code))
		logger.LogAttrs(context.Background(), slog.LevelError, "chunk failed", attrs...)
	}
}

// Hidden 返回用于日志输出的密钥占位符
func Hidden(secret string) string {
	if secret == "" {
		return ""
	}
	return "[hidden]"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// fanout 将记录同时分发到多个 handler
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
