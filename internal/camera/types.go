package camera

import (
	"context"
)

// SourceType は映像ソースの種類
type SourceType string

const (
	// SourceTypeUSB はV4L2のUSBカメラ
	SourceTypeUSB SourceType = "usb"
	// SourceTypePattern は合成テストパターン
	SourceTypePattern SourceType = "pattern"
)

// Settings は映像ソースの設定
type Settings struct {
	Device string // デバイスパス（空の場合は自動検出）
	Width  int    // 画像幅
	Height int    // 画像高さ
	FPS    int    // フレームレート
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device string // デバイスパス
	Name   string // デバイス名
	Driver string // ドライバー名
}

// withDefaults は0以下の値をデフォルト値で埋める
func (s Settings) withDefaults() Settings {
	if s.Width <= 0 {
		s.Width = 640
	}
	if s.Height <= 0 {
		s.Height = 480
	}
	if s.FPS <= 0 {
		s.FPS = 15
	}
	return s
}
