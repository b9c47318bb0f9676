package collector

import (
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// ManifestRow はデータセットマニフェストの1行
type ManifestRow struct {
	SubjectID   string `parquet:"subject_id"`
	SubjectName string `parquet:"subject_name"`
	ImageNumber int64  `parquet:"image_number"`
	Path        string `parquet:"path"`
	SizeBytes   int64  `parquet:"size_bytes"`
	CapturedAt  string `parquet:"captured_at"` // RFC3339
}

// NewManifestRows は保存済み画像をマニフェストの行に変換する
func NewManifestRows(records []ImageRecord) []ManifestRow {
	rows := make([]ManifestRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ManifestRow{
			SubjectID:   rec.SubjectID,
			SubjectName: rec.SubjectName,
			ImageNumber: int64(rec.ImageNumber),
			Path:        rec.Path,
			SizeBytes:   rec.SizeBytes,
			CapturedAt:  rec.CapturedAt.Format(time.RFC3339),
		})
	}
	return rows
}

// WriteManifest はデータセット全体のマニフェストをParquet形式で書き出す
func WriteManifest(w io.Writer, store *Store) (int, error) {
	records, err := store.All()
	if err != nil {
		return 0, err
	}

	rows := NewManifestRows(records)
	if err := parquet.Write(w, rows); err != nil {
		return 0, errors.Wrap(err, "マニフェストの書き込みに失敗")
	}
	return len(rows), nil
}
