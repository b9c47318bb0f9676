// Package cmd はfacecapのサブコマンドを定義します
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"facecap/internal/config"
	"facecap/internal/logging"
)

// rootOptions は全サブコマンドで共有する設定
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd はルートコマンドを作成する
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "facecap",
		Short: "顔認識の学習用画像を撮影して収集サーバーに送る",
		Long: `facecap は被写体の名前とIDを付けて顔画像を撮影し、収集サーバーに送信します。

撮影端末は serve、保存側は collector で起動します。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env があれば読み込む（なくてもよい）
			_ = godotenv.Load()

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "設定ファイル (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "ログレベル (trace, debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCollectorCmd(opts))
	cmd.AddCommand(newManifestCmd(opts))

	return cmd
}
