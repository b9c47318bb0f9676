// Package capture は1回分の撮影（フレーム描画・JPEGエンコード・アップロード）を担う
//
// # 責務
// - 映像ソースの現在フレームを固定サイズのビットマップに描画する
// - ビットマップをJPEGのdata URLにエンコードする
// - 収集サーバーへ1回だけ送信し、応答を Ack または UploadError として返す
//
// # 仕様
// - 出力サイズは固定（デフォルト 640x480）。ソースの縦横比は保持せず引き伸ばす
// - パイプライン内ではリトライしない。1回の呼び出しにつき送信は1回
// - どの段階で失敗しても呼び出し元には必ず UploadError が返る（panicも変換する）
package capture
