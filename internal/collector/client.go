package collector

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"facecap/internal/capture"
)

// maxResponseBody は読み込む応答ボディの上限
const maxResponseBody = 1 << 20

// ErrResponseTooLarge は応答ボディが上限を超えたことを示す
var ErrResponseTooLarge = errors.New("応答が大きすぎます")

// Client は収集サーバーへ画像を送信する
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient は新しいClientを作成する。timeout が0の場合はタイムアウトなし
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit は画像を POST /capture に送信する。
// 通信エラーと非2xx応答・不正なJSON・上限超過の応答は capture.UploadError として返す。
// 2xxで解析できるJSONであれば値の種類は問わない
func (c *Client) Submit(ctx context.Context, upload capture.Upload) (capture.Ack, error) {
	body, err := json.Marshal(upload)
	if err != nil {
		return capture.Ack{}, &capture.UploadError{Stage: capture.StageEncode, ImageNumber: upload.ImageNumber, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/capture", bytes.NewReader(body))
	if err != nil {
		return capture.Ack{}, &capture.UploadError{Stage: capture.StageTransport, ImageNumber: upload.ImageNumber, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return capture.Ack{}, &capture.UploadError{Stage: capture.StageTransport, ImageNumber: upload.ImageNumber, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return capture.Ack{}, &capture.UploadError{Stage: capture.StageTransport, ImageNumber: upload.ImageNumber, Err: err}
	}
	if len(data) > maxResponseBody {
		return capture.Ack{}, &capture.UploadError{
			Stage:       capture.StageResponse,
			ImageNumber: upload.ImageNumber,
			StatusCode:  resp.StatusCode,
			Err:         errors.Wrapf(ErrResponseTooLarge, "上限 %d バイト", maxResponseBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return capture.Ack{}, &capture.UploadError{
			Stage:       capture.StageResponse,
			ImageNumber: upload.ImageNumber,
			StatusCode:  resp.StatusCode,
			Err:         errors.Errorf("収集サーバーがエラーを返しました: %s", errorDetail(data)),
		}
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return capture.Ack{}, &capture.UploadError{
			Stage:       capture.StageResponse,
			ImageNumber: upload.ImageNumber,
			StatusCode:  resp.StatusCode,
			Err:         errors.Wrap(err, "応答のJSON解析に失敗"),
		}
	}

	var message string
	if obj, ok := decoded.(map[string]any); ok {
		message, _ = obj["message"].(string)
	}
	return capture.Ack{Message: message, Body: decoded}, nil
}

// errorDetail は応答ボディからエラーの説明を取り出す
func errorDetail(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(string(data))
}
