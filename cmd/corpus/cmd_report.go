package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/report"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "输出语料统计与近似重复转写",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, "report")
			if err != nil {
				return err
			}
			defer env.finish()

			corpus, err := store.New(env.cfg.Serve.Corpus).Load(cmd.Context())
			if err != nil {
				return err
			}
			r := report.Build(corpus, report.Options{Threshold: env.cfg.Serve.Threshold})

			out := cmd.OutOrStdout()
			switch format, _ := cmd.Flags().GetString("output"); format {
			case "json":
				return report.WriteJSON(out, r)
			case "", "text":
				return report.WriteText(out, r)
			default:
				return fmt.Errorf("unknown output format %q (json / text)", format)
			}
		},
	}
	f := cmd.Flags()
	f.String("corpus", "", "语料 JSON 文档路径")
	f.Int("threshold", 0, "近似重复的 simhash 汉明距离阈值 (负数关闭)")
	f.StringP("output", "o", "text", "输出格式: json / text")
	return cmd
}
