package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/server"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动只读 HTTP 接口查看语料",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, "serve")
			if err != nil {
				return err
			}
			defer env.finish()

			if env.cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s := env.cfg.Serve
			srv := server.New(server.Config{
				Addr:      s.Addr,
				ChunksDir: s.ChunksDir,
				Threshold: s.Threshold,
			}, store.New(s.Corpus), env.logger)
			return srv.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "监听地址 (默认: :8090)")
	f.String("corpus", "", "语料 JSON 文档路径")
	f.String("chunks-dir", "", "切片目录")
	return cmd
}
