package camera

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"facecap/internal/capture"
	"facecap/internal/session"
)

// ErrNoFrame はまだフレームが届いていない
var ErrNoFrame = errors.New("フレームがまだ取得されていません")

// frameStream は session.Stream の共通実装
type frameStream struct {
	tracks []session.Track

	ready     chan struct{}
	done      chan struct{}
	readyOnce sync.Once
	doneOnce  sync.Once

	mu     sync.RWMutex
	latest []byte
	err    error
}

func newFrameStream() *frameStream {
	return &frameStream{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Tracks はトラック一覧を返す
func (s *frameStream) Tracks() []session.Track {
	return s.tracks
}

// Source は撮影用のフレームソースを返す
func (s *frameStream) Source() capture.FrameSource {
	return s
}

// Ready は最初のフレーム到着でクローズされる
func (s *frameStream) Ready() <-chan struct{} {
	return s.ready
}

// Done はストリーム終了でクローズされる
func (s *frameStream) Done() <-chan struct{} {
	return s.done
}

// Err はストリーム終了の原因を返す
func (s *frameStream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// publish は最新フレームを更新する
func (s *frameStream) publish(frame []byte) {
	s.mu.Lock()
	s.latest = make([]byte, len(frame))
	copy(s.latest, frame)
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
}

// finish はストリームを終了する
func (s *frameStream) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// LatestJPEG は最新フレームのコピーを返す
func (s *frameStream) LatestJPEG() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, false
	}
	frame := make([]byte, len(s.latest))
	copy(frame, s.latest)
	return frame, true
}

// Frame は最新フレームをデコードして返す
func (s *frameStream) Frame(_ context.Context) (image.Image, error) {
	select {
	case <-s.done:
		return nil, errors.New("ストリームは終了しています")
	default:
	}

	data, ok := s.LatestJPEG()
	if !ok {
		return nil, ErrNoFrame
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "JPEG画像のデコードに失敗")
	}
	return img, nil
}

// track は停止関数を1回だけ実行するトラック
type track struct {
	id   string
	kind string
	once sync.Once
	stop func()
}

func newTrack(kind string, stop func()) *track {
	return &track{
		id:   uuid.NewString(),
		kind: kind,
		stop: stop,
	}
}

func (t *track) ID() string   { return t.id }
func (t *track) Kind() string { return t.kind }

// Stop はトラックを停止する
func (t *track) Stop() {
	t.once.Do(t.stop)
}
