package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
)

var (
	jpegSOI = []byte{0xFF, 0xD8} // JPEGの開始マーカー
	jpegEOI = []byte{0xFF, 0xD9} // JPEGの終了マーカー
)

// V4L2Capturer はシェルコマンドを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// StartStream は ffmpeg で連続キャプチャを開始する。
// フレームチャンネルは ffmpeg の終了時にクローズされ、その後に終了理由が1件送られる
func (c *V4L2Capturer) StartStream(ctx context.Context) (<-chan []byte, <-chan error, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "stdoutパイプの作成に失敗")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, errors.Wrap(err, "ffmpegの起動に失敗")
	}

	frameChan := make(chan []byte, 10)
	exitChan := make(chan error, 1)

	go func() {
		defer close(frameChan)

		splitter := &jpegSplitter{}
		buffer := make([]byte, 64*1024)
		for {
			n, readErr := stdout.Read(buffer)
			if n > 0 {
				for _, frame := range splitter.Write(buffer[:n]) {
					select {
					case frameChan <- frame:
					case <-ctx.Done():
					}
				}
			}
			if readErr != nil {
				break
			}
		}

		waitErr := cmd.Wait()
		if waitErr != nil && ctx.Err() == nil {
			exitChan <- errors.Wrapf(waitErr, "ffmpegが終了しました (stderr: %s)", stderr.String())
			return
		}
		exitChan <- nil
	}()

	return frameChan, exitChan, nil
}

// jpegSplitter は連結されたJPEGバイト列からフレームを切り出す
type jpegSplitter struct {
	buf bytes.Buffer
}

// Write はデータを追加し、完成したフレームを返す
func (s *jpegSplitter) Write(p []byte) [][]byte {
	s.buf.Write(p)

	var frames [][]byte
	for {
		data := s.buf.Bytes()

		startIdx := bytes.Index(data, jpegSOI)
		if startIdx == -1 {
			// マーカーの途中で切れている可能性があるため末尾の 0xFF は残す
			if n := len(data); n > 0 && data[n-1] == 0xFF {
				s.reset([]byte{0xFF})
			} else {
				s.buf.Reset()
			}
			return frames
		}

		endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
		if endIdx == -1 {
			if startIdx > 0 {
				s.reset(data[startIdx:])
			}
			return frames
		}

		endIdx += startIdx + 2 + 2
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		s.reset(data[endIdx:])
	}
}

// reset はバッファを残りのデータで置き換える
func (s *jpegSplitter) reset(remaining []byte) {
	rest := make([]byte, len(remaining))
	copy(rest, remaining)
	s.buf.Reset()
	s.buf.Write(rest)
}
