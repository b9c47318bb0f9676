package session

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"facecap/internal/capture"
)

const waitTimeout = 2 * time.Second

// fakeTrack はテスト用のトラック
type fakeTrack struct {
	mu      sync.Mutex
	stops   int
	onStop  func()
	trackID string
}

func (t *fakeTrack) ID() string   { return t.trackID }
func (t *fakeTrack) Kind() string { return "video" }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stops++
	onStop := t.onStop
	t.mu.Unlock()
	if onStop != nil {
		onStop()
	}
}

func (t *fakeTrack) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// fakeStream はテスト用のストリーム
type fakeStream struct {
	track     *fakeTrack
	ready     chan struct{}
	done      chan struct{}
	readyOnce sync.Once
	doneOnce  sync.Once
	mu        sync.Mutex
	err       error
}

func newFakeStream() *fakeStream {
	s := &fakeStream{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.track = &fakeTrack{trackID: "video-0", onStop: func() { s.end(nil) }}
	return s
}

func (s *fakeStream) Tracks() []Track              { return []Track{s.track} }
func (s *fakeStream) Source() capture.FrameSource { return s }
func (s *fakeStream) Ready() <-chan struct{}       { return s.ready }
func (s *fakeStream) Done() <-chan struct{}        { return s.done }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Frame(_ context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (s *fakeStream) LatestJPEG() ([]byte, bool) {
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, true
}

// FirstFrame は最初のフレーム到着を模擬する
func (s *fakeStream) FirstFrame() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Lose はストリーム喪失を模擬する
func (s *fakeStream) Lose(err error) {
	s.end(err)
}

func (s *fakeStream) end(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

type streamResult struct {
	stream Stream
	err    error
}

// fakeDevices はテストが解決タイミングを制御するデバイス
type fakeDevices struct {
	results      chan streamResult
	ignoreCancel bool
	mu           sync.Mutex
	calls        int
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{results: make(chan streamResult, 4)}
}

func (d *fakeDevices) RequestStream(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.ignoreCancel {
		r := <-d.results
		return r.stream, r.err
	}

	select {
	case r := <-d.results:
		return r.stream, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDevices) Resolve(stream Stream) {
	d.results <- streamResult{stream: stream}
}

func (d *fakeDevices) Fail(err error) {
	d.results <- streamResult{err: err}
}

func (d *fakeDevices) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type captureOutcome struct {
	ack capture.Ack
	err error
}

// pendingCapture は解決待ちの撮影
type pendingCapture struct {
	req   capture.Request
	src   capture.FrameSource
	reply chan captureOutcome
}

func (p *pendingCapture) Succeed() {
	p.reply <- captureOutcome{ack: capture.Ack{Message: "saved"}}
}

func (p *pendingCapture) Fail(err error) {
	p.reply <- captureOutcome{err: err}
}

// fakeCapturer はテストが解決タイミングを制御する撮影パイプライン
type fakeCapturer struct {
	calls chan *pendingCapture
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{calls: make(chan *pendingCapture, 16)}
}

func (f *fakeCapturer) Capture(_ context.Context, src capture.FrameSource, req capture.Request) (capture.Ack, error) {
	p := &pendingCapture{req: req, src: src, reply: make(chan captureOutcome, 1)}
	f.calls <- p
	out := <-p.reply
	return out.ack, out.err
}

func (f *fakeCapturer) Next(t *testing.T) *pendingCapture {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("撮影が開始されませんでした")
		return nil
	}
}

// recordingNotifier は通知を記録する
type recordingNotifier struct {
	mu        sync.Mutex
	saved     []int
	failed    []int
	deviceErr []error
	lost      []Identity
	summaries []Summary
}

func (n *recordingNotifier) CaptureSaved(req capture.Request, _ capture.Ack, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.saved = append(n.saved, req.ImageNumber)
}

func (n *recordingNotifier) CaptureFailed(req capture.Request, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, req.ImageNumber)
}

func (n *recordingNotifier) DeviceFailed(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deviceErr = append(n.deviceErr, err)
}

func (n *recordingNotifier) DeviceLost(identity Identity, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lost = append(n.lost, identity)
}

func (n *recordingNotifier) SessionComplete(summary Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
}

func (n *recordingNotifier) Summaries() []Summary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Summary(nil), n.summaries...)
}

func (n *recordingNotifier) DeviceErrors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.deviceErr...)
}

func (n *recordingNotifier) Lost() []Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Identity(nil), n.lost...)
}

func (n *recordingNotifier) Saved() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.saved...)
}

func (n *recordingNotifier) Failed() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.failed...)
}

type harness struct {
	ctrl     *Controller
	devices  *fakeDevices
	capturer *fakeCapturer
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		devices:  newFakeDevices(),
		capturer: newFakeCapturer(),
		notifier: &recordingNotifier{},
	}
	h.ctrl = NewController(h.devices, h.capturer, h.notifier)
	t.Cleanup(func() { h.ctrl.Close(context.Background()) })
	return h
}

// startReady は名前・IDを設定してカメラを準備完了まで進める
func (h *harness) startReady(t *testing.T, name, id string) *fakeStream {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.ctrl.SetIdentity(name, id))
	require.NoError(t, h.ctrl.StartCamera(ctx))

	stream := newFakeStream()
	h.devices.Resolve(stream)
	stream.FirstFrame()

	require.Eventually(t, func() bool { return h.ctrl.Snapshot().DeviceReady }, waitTimeout, 5*time.Millisecond)
	return stream
}
