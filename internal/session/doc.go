// Package session は撮影セッションの状態遷移を管理する
//
// # 責務
// - 被写体の名前・IDの保持と、撮影中の変更禁止
// - カメラの開始・停止とデバイス準備完了の管理
// - 撮影の排他制御（同時に1件まで、キューイングしない）
// - 成功した送信数のカウントと、停止時の完了サマリー通知
//
// # 仕様
// - 状態は State 値として表現し、遷移は State のメソッド（純粋関数）で行う
// - Controller は State をミューテックスで保護し、非同期処理（デバイス取得・送信）を起動する
// - 非同期処理の完了時には世代番号（Generation）を照合し、
//   停止後に届いた遅延コールバックは破棄する
// - デバイスとリモート収集サーバーは DeviceSource / Capturer インターフェースで抽象化する
package session
