package collector

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// timestampLayout はファイル名に埋め込む撮影日時の形式
const timestampLayout = "20060102_150405"

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// ImageRecord は保存済み画像1枚の情報
type ImageRecord struct {
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	ImageNumber int       `json:"image_number"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Store は被写体IDごとのディレクトリに画像を保存する
type Store struct {
	root string
	now  func() time.Time
}

// NewStore は新しいStoreを作成する
func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// Root は保存先のルートディレクトリを返す
func (s *Store) Root() string {
	return s.root
}

// Save は画像を <root>/<id>/<name>_<number>_<timestamp>.jpg に保存する
func (s *Store) Save(name, id string, number int, data []byte) (ImageRecord, error) {
	folder := filepath.Join(s.root, sanitize(id))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return ImageRecord{}, errors.Wrapf(err, "保存先ディレクトリの作成に失敗: %s", folder)
	}

	capturedAt := s.now()
	filename := sanitize(name) + "_" + strconv.Itoa(number) + "_" + capturedAt.Format(timestampLayout) + ".jpg"
	path := filepath.Join(folder, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ImageRecord{}, errors.Wrapf(err, "画像の保存に失敗: %s", path)
	}

	return ImageRecord{
		SubjectID:   id,
		SubjectName: name,
		ImageNumber: number,
		Path:        path,
		SizeBytes:   int64(len(data)),
		CapturedAt:  capturedAt.Truncate(time.Second),
	}, nil
}

// List は被写体の保存済み画像を番号順に返す。ディレクトリがなければ空を返す
func (s *Store) List(id string) ([]ImageRecord, error) {
	dir := sanitize(id)
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if errors.Is(err, os.ErrNotExist) {
		return []ImageRecord{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "画像一覧の取得に失敗: %s", id)
	}

	records := make([]ImageRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rec, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "ファイル情報の取得に失敗: %s", entry.Name())
		}
		rec.SubjectID = dir
		rec.Path = filepath.Join(s.root, dir, entry.Name())
		rec.SizeBytes = info.Size()
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ImageNumber != records[j].ImageNumber {
			return records[i].ImageNumber < records[j].ImageNumber
		}
		return records[i].CapturedAt.Before(records[j].CapturedAt)
	})
	return records, nil
}

// All は全被写体の保存済み画像を返す
func (s *Store) All() ([]ImageRecord, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return []ImageRecord{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "データセットの走査に失敗: %s", s.root)
	}

	var records []ImageRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subject, err := s.List(entry.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, subject...)
	}
	return records, nil
}

// sanitize はパス区切りや制御文字を取り除き、ファイル名として安全な文字列にする
func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.TrimLeft(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

// parseFilename は <name>_<number>_<YYYYMMDD>_<HHMMSS>.jpg を解析する
func parseFilename(filename string) (ImageRecord, bool) {
	base, ok := strings.CutSuffix(filename, ".jpg")
	if !ok {
		return ImageRecord{}, false
	}

	parts := strings.Split(base, "_")
	if len(parts) < 4 {
		return ImageRecord{}, false
	}
	n := len(parts)

	capturedAt, err := time.ParseInLocation(timestampLayout, parts[n-2]+"_"+parts[n-1], time.Local)
	if err != nil {
		return ImageRecord{}, false
	}
	number, err := strconv.Atoi(parts[n-3])
	if err != nil {
		return ImageRecord{}, false
	}

	return ImageRecord{
		SubjectName: strings.Join(parts[:n-3], "_"),
		ImageNumber: number,
		CapturedAt:  capturedAt,
	}, true
}
