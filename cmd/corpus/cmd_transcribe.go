package main

import (
	"github.com/spf13/cobra"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/transcribe"
)

func newTranscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "调用识别后端转写切片并写入 asr 字段",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, transcribe.Stage)
			if err != nil {
				return err
			}
			defer env.finish()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			t := env.cfg.Transcribe
			policy := transcribe.DefaultPolicy()
			policy.Timeout = t.Timeout
			policy.MaxTries = t.MaxRetries
			policy.BreakerFailures = t.BreakerFailures

			backend, err := transcribe.Build(transcribe.Options{
				Backend:  t.Backend,
				Fallback: t.Fallback,
				Configs:  t.BackendConfigs(),
				Policy:   policy,
				Logger:   env.logger,
			})
			if err != nil {
				return err
			}

			d := &transcribe.Dispatcher{
				Transcriber: backend,
				Loader:      audio.Codec{FFmpeg: t.FFmpeg},
				Store:       store.New(t.Corpus),
				InputDir:    t.InputDir,
				Language:    t.Language,
				SampleRate:  t.SampleRate,
				Limit:       t.Limit,
				Workers:     t.Workers,
				Logger:      env.logger,
				RunID:       env.runID,
			}
			_, err = d.Run(ctx)
			return err
		},
	}
	f := cmd.Flags()
	f.StringP("input-dir", "i", "", "切片目录")
	f.String("corpus", "", "语料 JSON 文档路径")
	f.StringP("backend", "b", "", "识别后端: yandex / google / openai / whisper / deepgram / mock")
	f.String("fallback", "", "降级后端 (可选)")
	f.StringP("language", "l", "", "BCP 47 语言标签, 例如 ru-RU")
	f.Int("limit", 0, "仅处理前 N 个文件 (0 = 全部)")
	f.IntP("workers", "w", 0, "并发请求数")
	f.Int("sample-rate", 0, "上传前重采样的采样率")
	f.Duration("timeout", 0, "单次请求超时")
	return cmd
}
