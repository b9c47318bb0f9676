package capture

import (
	"fmt"
)

// Stage は失敗した処理段階
type Stage string

const (
	StageRender    Stage = "render"    // フレーム取得・描画
	StageEncode    Stage = "encode"    // JPEGエンコード
	StageTransport Stage = "transport" // 通信エラー
	StageResponse  Stage = "response"  // 非2xx応答または不正なJSON
)

// UploadError は1回の撮影・送信の失敗を表す
type UploadError struct {
	Stage       Stage
	ImageNumber int
	StatusCode  int // StageResponse の場合のみ設定
	Err         error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("画像 %d の送信に失敗 (%s, status %d): %v", e.ImageNumber, e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("画像 %d の送信に失敗 (%s): %v", e.ImageNumber, e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
