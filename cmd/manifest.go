package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"facecap/internal/collector"
)

func newManifestCmd(opts *rootOptions) *cobra.Command {
	var (
		dataset string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "保存済み画像の一覧をParquet形式で書き出す",
		Example: `  facecap manifest --dataset ./dataset --output manifest.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataset == "" {
				dataset = opts.cfg.Collector.DatasetDir
			}

			f, err := os.Create(output)
			if err != nil {
				return errors.Wrapf(err, "出力ファイルの作成に失敗: %s", output)
			}

			n, err := collector.WriteManifest(f, collector.NewStore(dataset))
			if closeErr := f.Close(); err == nil && closeErr != nil {
				err = errors.Wrap(closeErr, "出力ファイルのクローズに失敗")
			}
			if err != nil {
				return err
			}

			log.Info().Str("dataset", dataset).Str("output", output).Int("rows", n).Msg("マニフェストを書き出しました")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "画像の保存先 (デフォルト: 設定の dataset_dir)")
	cmd.Flags().StringVarP(&output, "output", "o", "manifest.parquet", "出力ファイル")

	return cmd
}
