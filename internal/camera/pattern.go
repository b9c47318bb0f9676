package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"facecap/internal/session"
)

// PatternDevice はカメラの代わりに合成テストパターンを流す
type PatternDevice struct {
	settings Settings
}

// NewPatternDevice は新しいPatternDeviceを作成する
func NewPatternDevice(settings Settings) *PatternDevice {
	return &PatternDevice{settings: settings.withDefaults()}
}

// RequestStream はテストパターンのストリームを返す。最初のフレームは即座に生成する
func (d *PatternDevice) RequestStream(ctx context.Context) (session.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	first, err := renderPattern(d.settings.Width, d.settings.Height, 0)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	stream := newFrameStream()
	stream.tracks = []session.Track{newTrack("video", func() { close(stop) })}
	stream.publish(first)

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(d.settings.FPS))
		defer ticker.Stop()

		for tick := 1; ; tick++ {
			select {
			case <-stop:
				stream.finish(nil)
				return
			case <-ticker.C:
			}

			frame, err := renderPattern(d.settings.Width, d.settings.Height, tick)
			if err != nil {
				stream.finish(err)
				return
			}
			stream.publish(frame)
		}
	}()

	log.Info().
		Int("width", d.settings.Width).
		Int("height", d.settings.Height).
		Msg("テストパターンのストリームを開始しました")

	return stream, nil
}

var patternBars = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
}

// renderPattern はカラーバーの上を白い縦線が移動する画像をJPEGで返す
func renderPattern(width, height, tick int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barWidth := (width + len(patternBars) - 1) / len(patternBars)
	marker := (tick * 8) % width

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := patternBars[x/barWidth]
			if x >= marker && x < marker+4 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, errors.Wrap(err, "テストパターンのエンコードに失敗")
	}
	return buf.Bytes(), nil
}
