package cmd

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"facecap/internal/collector"
	"facecap/internal/server"
)

func newCollectorCmd(opts *rootOptions) *cobra.Command {
	var (
		host    string
		port    int
		dataset string
	)

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "撮影画像を受け取って保存する収集サーバーを起動する",
		Example: `  # ./dataset に保存
  facecap collector

  # 保存先とポートを指定
  facecap collector --dataset /srv/faces --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if host != "" {
				cfg.Collector.Host = host
			}
			if port != 0 {
				cfg.Collector.Port = port
			}
			if dataset != "" {
				cfg.Collector.DatasetDir = dataset
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			doc, err := collector.LoadOpenAPI(cmd.Context())
			if err != nil {
				return err
			}
			validator, err := collector.NewRequestValidator(doc)
			if err != nil {
				return err
			}

			store := collector.NewStore(cfg.Collector.DatasetDir)
			log.Info().
				Str("dataset", store.Root()).
				Str("addr", cfg.CollectorAddress()).
				Msg("収集サーバーを起動します")

			return server.Serve(cmd.Context(), &http.Server{
				Addr:        cfg.CollectorAddress(),
				Handler:     collector.NewRouter(store, validator),
				ReadTimeout: cfg.Server.ReadTimeout,
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "リッスンするホスト (デフォルト: 0.0.0.0)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "リッスンするポート (デフォルト: 8000)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "画像の保存先 (デフォルト: dataset)")

	return cmd
}
