package capture

import (
	"context"
	"image"
)

// FrameSource は現在のフレームを提供する映像ソース
type FrameSource interface {
	// Frame は最新のフレームを返す
	Frame(ctx context.Context) (image.Image, error)
}

// JPEGSource は最新フレームをJPEGバイト列のまま提供できるソース（ライブプレビュー用）
type JPEGSource interface {
	LatestJPEG() ([]byte, bool)
}

// Request は1回の撮影要求
type Request struct {
	SubjectName string
	SubjectID   string
	ImageNumber int // 1始まりの連番（capturedCount + 1）
}

// Upload は収集サーバーへ送信するリクエストボディ
type Upload struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Image       string `json:"image"`
	ImageNumber int    `json:"image_number"`
}

// Ack は収集サーバーからの受領応答
type Ack struct {
	Message string
	// Body は応答のJSON値。オブジェクト以外もそのまま保持する
	Body any
}

// Collector はリモート収集サーバーへの送信口
type Collector interface {
	Submit(ctx context.Context, upload Upload) (Ack, error)
}
