// Package camera はカメラデバイスからの映像ストリームを提供する
//
// # 責務
// - V4L2デバイス（USBカメラ）を ffmpeg 経由で開き、MJPEGフレームを取り出す
// - 開発・テスト用の合成テストパターン映像を生成する
// - 撮影セッションに session.Stream として最新フレームと準備完了・終了の通知を渡す
// - /dev/video* デバイスの検出
//
// # 仕様
// - Stream は最初の完全なJPEGフレームを受け取った時点で Ready をクローズする
// - トラックの Stop は冪等で、全トラック停止でストリームは終了する
// - 停止以外の理由で ffmpeg が終了した場合は Err にその原因を設定する
//
// # 前提要件
//   - v4l-utils: デバイス名の取得と利用可否の確認に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
