package main

import (
	"github.com/spf13/cobra"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/segmenter"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "按声学活动切分音频并创建语料文档",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, segmenter.Stage)
			if err != nil {
				return err
			}
			defer env.finish()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s := env.cfg.Split
			seg := &segmenter.Segmenter{
				Params: segmenter.Params{
					FrameLengthMs: s.FrameLengthMs,
					FrameShiftMs:  s.FrameShiftMs,
					QFactor:       s.QFactor,
				},
				Codec:        audio.Codec{FFmpeg: s.FFmpeg},
				Store:        store.New(s.Corpus),
				OutputDir:    s.OutputDir,
				Prefix:       s.Prefix,
				Format:       s.Format,
				SampleRate:   s.SampleRate,
				LimitSeconds: s.LimitSeconds,
				Padding:      segmenter.DefaultPadding,
				Logger:       env.logger,
				RunID:        env.runID,
			}
			_, err = seg.Run(ctx, s.Input)
			return err
		},
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "源音频文件")
	f.StringP("output-dir", "o", "", "切片输出目录")
	f.String("prefix", "", "切片文件名前缀")
	f.String("format", "", "切片格式: wav / ogg / mp3 / flac / m4a")
	f.String("corpus", "", "语料 JSON 文档路径")
	f.Int("frame-length", 0, "帧长 (ms)")
	f.Int("frame-shift", 0, "帧移 (ms)")
	f.Float64("q-factor", 0, "活动阈值系数")
	f.Int("sample-rate", 0, "重采样到指定采样率 (0 = 保持原样)")
	f.Float64("limit", 0, "仅处理前 N 秒 (0 = 全部)")
	return cmd
}
