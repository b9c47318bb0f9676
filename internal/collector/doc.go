// Package collector は、撮影画像の収集サーバーとそのクライアントを提供します。
//
// 撮影端末は Client を通じて POST /capture に {name, id, image, image_number} を送信し、
// 収集サーバーは画像を被写体IDごとのディレクトリに保存します。
//
// 責務:
//   - 画像の受信と保存（<dataset>/<id>/<name>_<番号>_<日時>.jpg）
//   - OpenAPI定義に基づくリクエスト検証
//   - 被写体ごとの画像一覧とParquet形式のマニフェスト出力
//   - 撮影端末側の送信クライアント
package collector
