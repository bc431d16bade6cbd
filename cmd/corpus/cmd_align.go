package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/aligner"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

func newAlignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align",
		Short: "将转写结果与源文本对齐, 写入 found / shift / diff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, aligner.Stage)
			if err != nil {
				return err
			}
			defer env.finish()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a := env.cfg.Align
			raw, err := os.ReadFile(a.Source)
			if err != nil {
				return pipeline.NewError(pipeline.EMPTY_INPUT, "read source text "+a.Source, err)
			}
			if len(raw) == 0 {
				return pipeline.NewError(pipeline.EMPTY_INPUT, "source text is empty", nil)
			}

			tag := language.Und
			if a.Language != "" {
				if tag, err = language.Parse(a.Language); err != nil {
					return fmt.Errorf("align.language: %w", err)
				}
			}

			al := &aligner.Aligner{
				Params: aligner.Params{
					QFactor: a.QFactor,
					QMax:    a.QMax,
					QStep:   a.QStep,
				},
				Source:  aligner.NewSource(string(raw), tag),
				Store:   store.New(a.Corpus),
				Workers: a.Workers,
				Logger:  env.logger,
				RunID:   env.runID,
			}
			_, err = al.Run(ctx)
			return err
		},
	}
	f := cmd.Flags()
	f.StringP("source", "s", "", "源文本文件 (UTF-8)")
	f.String("corpus", "", "语料 JSON 文档路径")
	f.StringP("language", "l", "", "小写转换所用语言标签 (默认: und)")
	f.Int("q-factor", 0, "初始最大编辑距离")
	f.Int("q-max", 0, "最大编辑距离上限")
	f.Int("q-step", 0, "每轮增加的编辑距离")
	f.IntP("workers", "w", 0, "并发数")
	return cmd
}
