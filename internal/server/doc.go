// Package server は、撮影端末のHTTPサーバーを管理します。
//
// ブラウザのUIから撮影セッションを操作するためのAPIと、
// ライブプレビュー、セッション通知の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - セッション操作API（名前・ID設定、開始、撮影、停止）
//   - MJPEGによるライブプレビューの配信
//   - Server-Sent Eventsによる通知（送信完了、送信失敗、カメラエラー、撮影完了）
//   - 埋め込みUI（index.html）の配信
//
// 仕様:
//   - ルーティングはginを使用
//   - 撮影・カメラ取得は非同期。開始と撮影の要求は202を返し、結果は状態とイベントで確認する
//   - 撮影できない状態での撮影要求は409を返し、状態を変更しない
package server
