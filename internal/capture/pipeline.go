package capture

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Pipeline は1回の撮影（描画・エンコード・送信）を実行する
type Pipeline struct {
	renderer  *Renderer
	collector Collector
}

// NewPipeline は新しいPipelineを作成する
func NewPipeline(renderer *Renderer, collector Collector) *Pipeline {
	return &Pipeline{
		renderer:  renderer,
		collector: collector,
	}
}

// Capture はフレームを1枚撮影して収集サーバーへ送信する。
// 失敗時の戻り値は常に *UploadError
func (p *Pipeline) Capture(ctx context.Context, src FrameSource, req Request) (ack Ack, err error) {
	defer func() {
		if r := recover(); r != nil {
			ack = Ack{}
			err = &UploadError{Stage: StageRender, ImageNumber: req.ImageNumber, Err: errors.Errorf("panic: %v", r)}
		}
	}()

	if src == nil {
		return Ack{}, &UploadError{Stage: StageRender, ImageNumber: req.ImageNumber, Err: errors.New("映像ソースがありません")}
	}

	frame, err := src.Frame(ctx)
	if err != nil {
		return Ack{}, &UploadError{Stage: StageRender, ImageNumber: req.ImageNumber, Err: err}
	}

	bitmap := p.renderer.Render(frame)
	data, err := p.renderer.Encode(bitmap)
	if err != nil {
		return Ack{}, &UploadError{Stage: StageEncode, ImageNumber: req.ImageNumber, Err: err}
	}

	upload := Upload{
		Name:        req.SubjectName,
		ID:          req.SubjectID,
		Image:       EncodeDataURL(data),
		ImageNumber: req.ImageNumber,
	}

	log.Debug().
		Str("subject_id", req.SubjectID).
		Int("image_number", req.ImageNumber).
		Int("jpeg_bytes", len(data)).
		Msg("画像を送信します")

	ack, err = p.collector.Submit(ctx, upload)
	if err != nil {
		var uploadErr *UploadError
		if errors.As(err, &uploadErr) {
			if uploadErr.ImageNumber == 0 {
				uploadErr.ImageNumber = req.ImageNumber
			}
			return Ack{}, uploadErr
		}
		return Ack{}, &UploadError{Stage: StageTransport, ImageNumber: req.ImageNumber, Err: err}
	}

	return ack, nil
}
