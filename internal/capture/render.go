package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/pkg/errors"
)

const (
	// DefaultWidth は出力ビットマップの幅
	DefaultWidth = 640
	// DefaultHeight は出力ビットマップの高さ
	DefaultHeight = 480
	// DefaultQuality はJPEG品質（ブラウザの toDataURL と同じ 0.92 相当）
	DefaultQuality = 92

	dataURLPrefix = "data:image/jpeg;base64,"
)

// Renderer はフレームを固定サイズのビットマップに描画してJPEGにエンコードする
type Renderer struct {
	outputWidth  int
	outputHeight int
	quality      int
}

// NewRenderer は新しいRendererを作成する。0以下の値はデフォルトに置き換える
func NewRenderer(outputWidth, outputHeight, quality int) *Renderer {
	if outputWidth <= 0 {
		outputWidth = DefaultWidth
	}
	if outputHeight <= 0 {
		outputHeight = DefaultHeight
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Renderer{
		outputWidth:  outputWidth,
		outputHeight: outputHeight,
		quality:      quality,
	}
}

// Size は出力サイズを返す
func (r *Renderer) Size() (int, int) {
	return r.outputWidth, r.outputHeight
}

// Render はフレームを出力サイズのビットマップに描画する
func (r *Renderer) Render(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.outputWidth, r.outputHeight))

	srcBounds := src.Bounds()
	if srcBounds.Dx() == r.outputWidth && srcBounds.Dy() == r.outputHeight {
		draw.Draw(dst, dst.Bounds(), src, srcBounds.Min, draw.Src)
		return dst
	}

	r.drawScaled(dst, src)
	return dst
}

// drawScaled はニアレストネイバー法で引き伸ばしながら描画する
func (r *Renderer) drawScaled(dst *image.RGBA, src image.Image) {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()
	if srcWidth == 0 || srcHeight == 0 {
		return
	}

	for y := 0; y < r.outputHeight; y++ {
		srcY := y * srcHeight / r.outputHeight
		for x := 0; x < r.outputWidth; x++ {
			srcX := x * srcWidth / r.outputWidth
			dst.Set(x, y, src.At(srcBounds.Min.X+srcX, srcBounds.Min.Y+srcY))
		}
	}
}

// Encode はビットマップをJPEGにエンコードする
func (r *Renderer) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, errors.Wrap(err, "JPEGエンコードに失敗")
	}
	return buf.Bytes(), nil
}

// EncodeDataURL はJPEGバイト列を data URL 文字列にする
func EncodeDataURL(jpegData []byte) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(jpegData)
}
