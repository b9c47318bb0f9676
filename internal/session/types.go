package session

import (
	"context"

	"facecap/internal/capture"
)

// DeviceSource はカメラデバイスの取得口
type DeviceSource interface {
	// RequestStream はデバイスを開いてストリームを返す。1回だけ解決する
	RequestStream(ctx context.Context) (Stream, error)
}

// Stream は開かれたカメラデバイスのストリーム
type Stream interface {
	// Tracks はストリームを構成するトラック一覧を返す
	Tracks() []Track

	// Source は撮影用のフレームソースを返す
	Source() capture.FrameSource

	// Ready は最初のフレームが届いた時点でクローズされる
	Ready() <-chan struct{}

	// Done はストリームが終了した時点でクローズされる
	Done() <-chan struct{}

	// Err はストリーム終了の原因を返す。停止による終了の場合は nil
	Err() error
}

// Track はストリーム内の1トラック
type Track interface {
	ID() string
	Kind() string

	// Stop はトラックを停止する。複数回呼んでもよい
	Stop()
}

// Capturer は1回の撮影と送信を行う
type Capturer interface {
	Capture(ctx context.Context, src capture.FrameSource, req capture.Request) (capture.Ack, error)
}

// Notifier はユーザーへの通知先
type Notifier interface {
	CaptureSaved(req capture.Request, ack capture.Ack, count int)
	CaptureFailed(req capture.Request, err error)
	DeviceFailed(err error)
	DeviceLost(identity Identity, err error)
	SessionComplete(summary Summary)
}

// Identity は被写体の識別情報
type Identity struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Summary は撮影完了時のサマリー
type Summary struct {
	SubjectName string `json:"subject_name"`
	SubjectID   string `json:"subject_id"`
	Count       int    `json:"count"`
	RunID       string `json:"run_id"`
}
