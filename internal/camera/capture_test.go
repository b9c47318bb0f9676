package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func jpegFrame(payload ...byte) []byte {
	frame := append([]byte{}, jpegSOI...)
	frame = append(frame, payload...)
	return append(frame, jpegEOI...)
}

func TestJPEGSplitter_Write(t *testing.T) {
	t.Run("連結された複数フレームを分割する", func(t *testing.T) {
		s := &jpegSplitter{}
		a := jpegFrame(0x01, 0x02)
		b := jpegFrame(0x03)

		frames := s.Write(append(append([]byte{}, a...), b...))
		assert.Equal(t, [][]byte{a, b}, frames)
	})

	t.Run("分割された読み込みをまたいで組み立てる", func(t *testing.T) {
		s := &jpegSplitter{}
		frame := jpegFrame(0x10, 0x20, 0x30)

		assert.Empty(t, s.Write(frame[:3]))
		assert.Empty(t, s.Write(frame[3:len(frame)-1]))
		assert.Equal(t, [][]byte{frame}, s.Write(frame[len(frame)-1:]))
	})

	t.Run("開始マーカー前のゴミを捨てる", func(t *testing.T) {
		s := &jpegSplitter{}
		frame := jpegFrame(0x42)

		frames := s.Write(append([]byte{0x00, 0x11, 0x22}, frame...))
		assert.Equal(t, [][]byte{frame}, frames)
	})

	t.Run("開始マーカーが読み込みの境界で切れる", func(t *testing.T) {
		s := &jpegSplitter{}
		frame := jpegFrame(0x42)

		assert.Empty(t, s.Write([]byte{0x00, 0xFF}))
		assert.Equal(t, [][]byte{frame}, s.Write(frame[1:]))
	})
}
