package session

import (
	"github.com/rs/zerolog/log"

	"facecap/internal/capture"
)

// LogNotifier は通知をログに出力する
type LogNotifier struct{}

// NewLogNotifier は新しいLogNotifierを作成する
func NewLogNotifier() Notifier {
	return &LogNotifier{}
}

func (n *LogNotifier) CaptureSaved(req capture.Request, ack capture.Ack, count int) {
	log.Info().
		Str("subject_name", req.SubjectName).
		Int("image_number", req.ImageNumber).
		Int("captured_count", count).
		Str("ack", ack.Message).
		Msg("撮影した画像が保存されました")
}

func (n *LogNotifier) CaptureFailed(req capture.Request, err error) {
	log.Error().Err(err).
		Str("subject_name", req.SubjectName).
		Int("image_number", req.ImageNumber).
		Msg("画像を収集サーバーに送信できませんでした")
}

func (n *LogNotifier) DeviceFailed(err error) {
	log.Error().Err(err).Msg("カメラを利用できません")
}

func (n *LogNotifier) DeviceLost(identity Identity, err error) {
	log.Warn().Err(err).Str("subject_name", identity.Name).Msg("カメラが切断されました")
}

func (n *LogNotifier) SessionComplete(summary Summary) {
	log.Info().
		Str("subject_name", summary.SubjectName).
		Int("count", summary.Count).
		Msgf("撮影完了: %s の画像を %d 枚取得しました", summary.SubjectName, summary.Count)
}

// multiNotifier は複数の通知先に順に通知する
type multiNotifier []Notifier

// MultiNotifier は複数の通知先をまとめる
func MultiNotifier(notifiers ...Notifier) Notifier {
	return multiNotifier(notifiers)
}

func (m multiNotifier) CaptureSaved(req capture.Request, ack capture.Ack, count int) {
	for _, n := range m {
		n.CaptureSaved(req, ack, count)
	}
}

func (m multiNotifier) CaptureFailed(req capture.Request, err error) {
	for _, n := range m {
		n.CaptureFailed(req, err)
	}
}

func (m multiNotifier) DeviceFailed(err error) {
	for _, n := range m {
		n.DeviceFailed(err)
	}
}

func (m multiNotifier) DeviceLost(identity Identity, err error) {
	for _, n := range m {
		n.DeviceLost(identity, err)
	}
}

func (m multiNotifier) SessionComplete(summary Summary) {
	for _, n := range m {
		n.SessionComplete(summary)
	}
}
