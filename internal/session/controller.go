package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"facecap/internal/capture"
)

// Controller は撮影セッションの状態遷移と非同期処理を管理する
type Controller struct {
	devices  DeviceSource
	capturer Capturer
	notifier Notifier
	newRunID func() string

	mu            sync.Mutex
	state         State
	stream        Stream
	cancelAcquire context.CancelFunc

	// 取得・撮影のゴルーチン
	pending sync.WaitGroup
	// ストリーム監視のゴルーチン
	watchers sync.WaitGroup
}

// NewController は新しいControllerを作成する
func NewController(devices DeviceSource, capturer Capturer, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &Controller{
		devices:  devices,
		capturer: capturer,
		notifier: notifier,
		newRunID: func() string { return uuid.New().String() },
	}
}

// Snapshot は現在の状態のコピーを返す
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetIdentity は名前・IDを設定する
func (c *Controller) SetIdentity(name, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.state.WithIdentity(name, id)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// StartCamera はカメラを開始し、デバイス取得を非同期に始める。
// 準備完了は DeviceReady で別途反映される
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	next, err := c.state.Start(c.newRunID())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	gen := next.Generation

	acquireCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelAcquire = cancel
	c.pending.Add(1)
	c.mu.Unlock()

	log.Info().
		Str("run_id", next.RunID).
		Str("subject_id", next.SubjectID).
		Uint64("generation", uint64(gen)).
		Msg("カメラを開始します")

	go c.acquire(acquireCtx, gen)
	return nil
}

// acquire はデバイスを取得してストリームを監視する
func (c *Controller) acquire(ctx context.Context, gen Generation) {
	defer c.pending.Done()

	stream, err := c.devices.RequestStream(ctx)
	if err != nil {
		c.DeviceError(gen, err)
		return
	}

	if !c.attach(gen, stream) {
		log.Debug().Uint64("generation", uint64(gen)).Msg("停止後に取得されたストリームを解放します")
		releaseStream(stream)
		return
	}

	c.watchers.Add(1)
	go c.watch(gen, stream)
}

// attach はストリームを現在の世代に結び付ける
func (c *Controller) attach(gen Generation, stream Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.state.Generation || !c.state.CameraActive {
		return false
	}
	c.stream = stream
	c.cancelAcquire = nil
	return true
}

// watch は準備完了とストリーム終了を待つ
func (c *Controller) watch(gen Generation, stream Stream) {
	defer c.watchers.Done()

	select {
	case <-stream.Ready():
		c.DeviceReady(gen)
	case <-stream.Done():
	}

	<-stream.Done()
	if err := stream.Err(); err != nil {
		c.DeviceLost(gen, err)
	}
}

// DeviceReady は最初のフレーム到着を反映する。古い世代の通知は無視する
func (c *Controller) DeviceReady(gen Generation) {
	c.mu.Lock()
	next, ok := c.state.MarkReady(gen)
	if ok {
		c.state = next
	}
	c.mu.Unlock()

	if !ok {
		log.Debug().Uint64("generation", uint64(gen)).Msg("古い準備完了通知を破棄しました")
		return
	}
	log.Info().Str("run_id", next.RunID).Msg("カメラの準備が完了しました")
}

// DeviceError はデバイス取得の失敗を反映する。状態は開始中のまま再試行を待つ
func (c *Controller) DeviceError(gen Generation, err error) {
	c.mu.Lock()
	next, ok := c.state.MarkAcquisitionFailed(gen)
	if ok {
		c.state = next
		c.cancelAcquire = nil
	}
	c.mu.Unlock()

	if !ok {
		log.Debug().Err(err).Uint64("generation", uint64(gen)).Msg("古いデバイスエラーを破棄しました")
		return
	}

	acqErr := &DeviceAcquisitionError{Err: err}
	log.Error().Err(err).Str("run_id", next.RunID).Msg("カメラの取得に失敗しました")
	c.notifier.DeviceFailed(acqErr)
}

// DeviceLost はストリーム喪失による暗黙の終了を行う
func (c *Controller) DeviceLost(gen Generation, err error) {
	c.mu.Lock()
	prev := c.state
	next, ok := c.state.Lose(gen)
	var stream Stream
	if ok {
		c.state = next
		stream = c.stream
		c.stream = nil
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	releaseStream(stream)
	log.Warn().Err(err).
		Str("run_id", prev.RunID).
		Int("captured_count", prev.CapturedCount).
		Msg("カメラのストリームが失われました")
	c.notifier.DeviceLost(prev.Identity(), err)
}

// StopCamera はカメラを停止してセッションを終了する。
// 撮影済みの枚数が1枚以上ならサマリーを通知して返す
func (c *Controller) StopCamera(_ context.Context) *Summary {
	c.mu.Lock()
	prev := c.state
	next, summary := c.state.Stop()
	c.state = next
	stream := c.stream
	c.stream = nil
	cancel := c.cancelAcquire
	c.cancelAcquire = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	releaseStream(stream)

	if prev.CameraActive {
		log.Info().
			Str("run_id", prev.RunID).
			Int("captured_count", prev.CapturedCount).
			Msg("カメラを停止しました")
	}

	if summary != nil {
		c.notifier.SessionComplete(*summary)
	}
	return summary
}

// RequestCapture は撮影を1件開始する。
// 準備未完了または撮影中の場合は何もせず false を返す
func (c *Controller) RequestCapture(ctx context.Context) bool {
	c.mu.Lock()
	next, req, ok := c.state.BeginCapture()
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.state = next
	gen := next.Generation
	var src capture.FrameSource
	if c.stream != nil {
		src = c.stream.Source()
	}
	c.pending.Add(1)
	c.mu.Unlock()

	// 停止しても送信は取り消さない
	uploadCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.pending.Done()
		ack, err := c.capturer.Capture(uploadCtx, src, req)
		c.finishCapture(gen, req, ack, err)
	}()
	return true
}

// finishCapture は撮影結果を反映する。停止後に届いた結果は破棄する
func (c *Controller) finishCapture(gen Generation, req capture.Request, ack capture.Ack, err error) {
	c.mu.Lock()
	next, ok := c.state.FinishCapture(gen, err == nil)
	if ok {
		c.state = next
	}
	c.mu.Unlock()

	if !ok {
		log.Debug().
			Int("image_number", req.ImageNumber).
			Uint64("generation", uint64(gen)).
			Msg("セッション終了後の撮影結果を破棄しました")
		return
	}

	if err != nil {
		log.Warn().Err(err).
			Str("subject_id", req.SubjectID).
			Int("image_number", req.ImageNumber).
			Msg("画像の送信に失敗しました")
		c.notifier.CaptureFailed(req, err)
		return
	}

	log.Info().
		Str("subject_id", req.SubjectID).
		Int("image_number", req.ImageNumber).
		Int("captured_count", next.CapturedCount).
		Msg("画像を送信しました")
	c.notifier.CaptureSaved(req, ack, next.CapturedCount)
}

// Preview は現在のストリームのプレビュー用ソースを返す
func (c *Controller) Preview() (capture.JPEGSource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil || !c.state.DeviceReady {
		return nil, false
	}
	src, ok := c.stream.Source().(capture.JPEGSource)
	return src, ok
}

// Wait は実行中のデバイス取得と撮影の完了を待つ
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Close はカメラを停止し、全てのゴルーチンの終了を待つ
func (c *Controller) Close(ctx context.Context) {
	c.StopCamera(ctx)
	c.pending.Wait()
	c.watchers.Wait()
}

// releaseStream はストリームの全トラックを停止する
func releaseStream(stream Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
