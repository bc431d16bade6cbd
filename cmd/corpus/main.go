package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/houzhh15/speech-corpus/pkg/logger"
	"github.com/houzhh15/speech-corpus/pkg/metrics"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "corpus",
		Short:         "speech corpus builder",
		Long:          "Cut a long recording into utterance chunks, transcribe them and align the transcripts with the source text.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// 添加全局标志
	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newSplitCmd())
	rootCmd.AddCommand(newTranscribeCmd())
	rootCmd.AddCommand(newAlignCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// addGlobalFlags 为 root 命令添加全局标志
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "配置文件 (默认: ./corpus.yaml, 若存在)")
	cmd.PersistentFlags().String("log-level", "", "日志级别: debug / info / warn / error (env: CORPUS_LOG_LEVEL)")
	cmd.PersistentFlags().String("log-format", "", "日志格式: console / json (env: CORPUS_LOG_FORMAT)")
	cmd.PersistentFlags().String("log-file", "", "轮转日志文件 (env: CORPUS_LOG_FILE)")
	cmd.PersistentFlags().String("metrics-textfile", "", "阶段结束时写入 prometheus 文本文件 (env: CORPUS_METRICS_TEXTFILE)")
}

// stageEnv 是每个子命令运行所需的公共环境
type stageEnv struct {
	cfg    *Config
	logger *slog.Logger
	runID  string
	closer io.Closer
}

// setup 加载并校验配置、初始化日志、分配 run id
func setup(cmd *cobra.Command, stage string) (*stageEnv, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(stage); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	cfg.Log.Output = cmd.ErrOrStderr()
	base, closer, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(base)

	runID := uuid.NewString()
	l := base.With("stage", stage, "run_id", runID)
	cfg.LogSettings(l, stage)
	return &stageEnv{cfg: cfg, logger: l, runID: runID, closer: closer}, nil
}

// finish 写出指标文本文件并关闭日志文件
func (e *stageEnv) finish() {
	if err := metrics.WriteTextfile(e.cfg.Metrics.Textfile); err != nil {
		e.logger.Warn("write metrics textfile", "path", e.cfg.Metrics.Textfile, "error", err)
	}
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

// signalContext 在收到 SIGINT/SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
