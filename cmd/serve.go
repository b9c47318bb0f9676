package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"facecap/internal/camera"
	"facecap/internal/capture"
	"facecap/internal/collector"
	"facecap/internal/server"
	"facecap/internal/session"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host   string
		port   int
		source string
		device string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "撮影端末のWeb UIを起動する",
		Example: `  # USBカメラで起動
  facecap serve

  # カメラなしでテストパターンを使う
  facecap serve --source pattern --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if source != "" {
				cfg.Camera.Source = source
			}
			if device != "" {
				cfg.Camera.Device = device
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			devices, err := camera.NewDeviceFactory(camera.NewLinuxDiscovery()).Create(
				camera.SourceType(cfg.Camera.Source),
				camera.Settings{
					Device: cfg.Camera.Device,
					Width:  cfg.Camera.Width,
					Height: cfg.Camera.Height,
					FPS:    cfg.Camera.FPS,
				},
			)
			if err != nil {
				return err
			}

			pipeline := capture.NewPipeline(
				capture.NewRenderer(cfg.Capture.Width, cfg.Capture.Height, cfg.Capture.Quality),
				collector.NewClient(cfg.Collector.URL, cfg.Capture.UploadTimeout),
			)

			events := server.NewEventBroker()
			ctrl := session.NewController(devices, pipeline, session.MultiNotifier(session.NewLogNotifier(), events))
			defer ctrl.Close(context.Background())

			log.Info().
				Str("source", cfg.Camera.Source).
				Str("collector", cfg.Collector.URL).
				Str("url", "http://"+cfg.ServerAddress()).
				Msg("撮影端末を起動します")

			return server.New(cfg, ctrl, events).Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "サーバーのポート (デフォルト: 8080)")
	cmd.Flags().StringVar(&source, "source", "", "映像ソース (usb, pattern)")
	cmd.Flags().StringVar(&device, "device", "", "カメラのデバイスパス (空なら自動検出)")

	return cmd
}
