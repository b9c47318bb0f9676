package session

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facecap/internal/capture"
)

func TestController_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	stream := h.startReady(t, "Alice", "42")

	// 1回目: 成功
	require.True(t, h.ctrl.RequestCapture(ctx))
	first := h.capturer.Next(t)
	assert.Equal(t, capture.Request{SubjectName: "Alice", SubjectID: "42", ImageNumber: 1}, first.req)
	assert.NotNil(t, first.src)
	first.Succeed()
	h.ctrl.Wait()
	assert.Equal(t, 1, h.ctrl.Snapshot().CapturedCount)

	// 2回目: 失敗
	require.True(t, h.ctrl.RequestCapture(ctx))
	second := h.capturer.Next(t)
	assert.Equal(t, 2, second.req.ImageNumber)
	second.Fail(errors.New("network down"))
	h.ctrl.Wait()

	state := h.ctrl.Snapshot()
	assert.Equal(t, 1, state.CapturedCount)
	assert.False(t, state.CaptureInFlight)
	assert.True(t, state.DeviceReady)
	assert.Equal(t, []int{1}, h.notifier.Saved())
	assert.Equal(t, []int{2}, h.notifier.Failed())

	// 停止
	summary := h.ctrl.StopCamera(ctx)
	require.NotNil(t, summary)
	assert.Equal(t, "Alice", summary.SubjectName)
	assert.Equal(t, 1, summary.Count)
	assert.Len(t, h.notifier.Summaries(), 1)

	state = h.ctrl.Snapshot()
	assert.Equal(t, 0, state.CapturedCount)
	assert.Equal(t, "", state.SubjectName)
	assert.Equal(t, "", state.SubjectID)
	assert.False(t, state.CameraActive)
	assert.False(t, state.DeviceReady)
	assert.Equal(t, PhaseIdle, state.Phase())
	assert.Equal(t, 1, stream.track.StopCount())
}

func TestController_StartCameraRequiresIdentity(t *testing.T) {
	testCases := []struct {
		name string
		subj string
		id   string
	}{
		{name: "名前なし", subj: "", id: "42"},
		{name: "IDなし", subj: "Alice", id: ""},
		{name: "両方なし", subj: "", id: ""},
		{name: "空白のみ", subj: "  ", id: "42"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.ctrl.SetIdentity(tc.subj, tc.id))
			before := h.ctrl.Snapshot()

			err := h.ctrl.StartCamera(context.Background())
			assert.ErrorIs(t, err, ErrIdentityRequired)
			assert.Equal(t, before, h.ctrl.Snapshot())
			assert.Equal(t, 0, h.devices.Calls())
		})
	}
}

func TestController_IdentityLockedWhileActive(t *testing.T) {
	h := newHarness(t)
	h.startReady(t, "Alice", "42")

	err := h.ctrl.SetIdentity("Mallory", "99")
	assert.ErrorIs(t, err, ErrIdentityLocked)
	assert.Equal(t, Identity{Name: "Alice", ID: "42"}, h.ctrl.Snapshot().Identity())
}

func TestController_DoubleStartIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	require.NoError(t, h.ctrl.StartCamera(ctx))
	gen := h.ctrl.Snapshot().Generation

	assert.ErrorIs(t, h.ctrl.StartCamera(ctx), ErrCameraActive)
	assert.Equal(t, gen, h.ctrl.Snapshot().Generation)

	h.devices.Resolve(newFakeStream())
}

func TestController_RequestCaptureGating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// カメラ停止中
	assert.False(t, h.ctrl.RequestCapture(ctx))

	// 開始中（準備未完了）
	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	require.NoError(t, h.ctrl.StartCamera(ctx))
	assert.False(t, h.ctrl.RequestCapture(ctx))

	stream := newFakeStream()
	h.devices.Resolve(stream)
	stream.FirstFrame()
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().DeviceReady }, waitTimeout, 5*time.Millisecond)

	// 撮影中は重複を拒否
	require.True(t, h.ctrl.RequestCapture(ctx))
	assert.True(t, h.ctrl.Snapshot().CaptureInFlight)
	assert.Equal(t, PhaseCapturing, h.ctrl.Snapshot().Phase())
	assert.False(t, h.ctrl.RequestCapture(ctx))
	assert.False(t, h.ctrl.RequestCapture(ctx))

	p := h.capturer.Next(t)
	p.Succeed()
	h.ctrl.Wait()

	select {
	case extra := <-h.capturer.calls:
		t.Fatalf("拒否された撮影が実行されました: %+v", extra.req)
	default:
	}
	assert.Equal(t, 1, h.ctrl.Snapshot().CapturedCount)
}

func TestController_ImageNumberIgnoresFailedAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startReady(t, "Alice", "42")

	outcomes := []bool{true, false, false, true, false}
	for _, ok := range outcomes {
		require.True(t, h.ctrl.RequestCapture(ctx))
		p := h.capturer.Next(t)
		if ok {
			p.Succeed()
		} else {
			p.Fail(errors.New("timeout"))
		}
		h.ctrl.Wait()
	}

	require.True(t, h.ctrl.RequestCapture(ctx))
	p := h.capturer.Next(t)
	assert.Equal(t, 3, p.req.ImageNumber)
	p.Succeed()
	h.ctrl.Wait()

	assert.Equal(t, 3, h.ctrl.Snapshot().CapturedCount)
}

func TestController_StopWithoutCapturesHasNoSummary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	stream := h.startReady(t, "Alice", "42")

	assert.Nil(t, h.ctrl.StopCamera(ctx))
	assert.Empty(t, h.notifier.Summaries())
	assert.Equal(t, State{Generation: h.ctrl.Snapshot().Generation}, h.ctrl.Snapshot())
	assert.Equal(t, 1, stream.track.StopCount())

	// 冪等
	assert.Nil(t, h.ctrl.StopCamera(ctx))
	assert.Equal(t, 1, stream.track.StopCount())
}

func TestController_StopClearsIdentityWhenInactive(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	assert.Equal(t, PhaseIdentitySet, h.ctrl.Snapshot().Phase())

	assert.Nil(t, h.ctrl.StopCamera(context.Background()))
	assert.Equal(t, PhaseIdle, h.ctrl.Snapshot().Phase())
}

func TestController_LateUploadAfterStopIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startReady(t, "Alice", "42")

	require.True(t, h.ctrl.RequestCapture(ctx))
	p := h.capturer.Next(t)

	assert.Nil(t, h.ctrl.StopCamera(ctx))

	// 停止後に成功応答が届く
	p.Succeed()
	h.ctrl.Wait()

	state := h.ctrl.Snapshot()
	assert.Equal(t, 0, state.CapturedCount)
	assert.False(t, state.CaptureInFlight)
	assert.False(t, state.DeviceReady)
	assert.Empty(t, h.notifier.Saved())
}

func TestController_LateUploadAfterRestartIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startReady(t, "Alice", "42")

	require.True(t, h.ctrl.RequestCapture(ctx))
	stale := h.capturer.Next(t)
	h.ctrl.StopCamera(ctx)

	h.startReady(t, "Bob", "7")
	stale.Succeed()
	h.ctrl.Wait()

	// 新しいセッションでは撮影可能でカウントは0のまま
	state := h.ctrl.Snapshot()
	assert.Equal(t, 0, state.CapturedCount)
	assert.False(t, state.CaptureInFlight)

	require.True(t, h.ctrl.RequestCapture(ctx))
	fresh := h.capturer.Next(t)
	assert.Equal(t, capture.Request{SubjectName: "Bob", SubjectID: "7", ImageNumber: 1}, fresh.req)
	fresh.Succeed()
	h.ctrl.Wait()
	assert.Equal(t, 1, h.ctrl.Snapshot().CapturedCount)
}

func TestController_LateDeviceReadyAfterStop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	require.NoError(t, h.ctrl.StartCamera(ctx))
	gen := h.ctrl.Snapshot().Generation

	h.ctrl.StopCamera(ctx)

	// 古い世代の準備完了通知
	h.ctrl.DeviceReady(gen)
	state := h.ctrl.Snapshot()
	assert.False(t, state.DeviceReady)
	assert.False(t, state.CameraActive)
}

func TestController_StopCancelsPendingAcquisition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.devices.results = make(chan streamResult) // 取得を保留させる

	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	require.NoError(t, h.ctrl.StartCamera(ctx))
	require.Eventually(t, func() bool { return h.devices.Calls() == 1 }, waitTimeout, 5*time.Millisecond)

	h.ctrl.StopCamera(ctx)
	h.ctrl.Wait()

	// 停止で取得はキャンセルされ、エラーは破棄される
	assert.Empty(t, h.notifier.DeviceErrors())
	assert.False(t, h.ctrl.Snapshot().CameraActive)
}

func TestController_StreamResolvedAfterStopIsReleased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.devices.ignoreCancel = true

	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	require.NoError(t, h.ctrl.StartCamera(ctx))
	require.Eventually(t, func() bool { return h.devices.Calls() == 1 }, waitTimeout, 5*time.Millisecond)

	h.ctrl.StopCamera(ctx)

	// 停止後にストリームが届く
	stream := newFakeStream()
	h.devices.Resolve(stream)
	stream.FirstFrame()
	h.ctrl.Wait()

	assert.Equal(t, 1, stream.track.StopCount())
	state := h.ctrl.Snapshot()
	assert.False(t, state.CameraActive)
	assert.False(t, state.DeviceReady)
	_, ok := h.ctrl.Preview()
	assert.False(t, ok)
}

func TestController_DeviceErrorAllowsRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetIdentity("Alice", "42"))
	require.NoError(t, h.ctrl.StartCamera(ctx))

	h.devices.Fail(errors.New("permission denied"))
	h.ctrl.Wait()

	state := h.ctrl.Snapshot()
	assert.Equal(t, PhaseOpening, state.Phase())
	assert.True(t, state.CameraActive)
	assert.False(t, state.DeviceReady)
	assert.True(t, state.AcquisitionFailed)
	assert.False(t, h.ctrl.RequestCapture(ctx))

	deviceErrs := h.notifier.DeviceErrors()
	require.Len(t, deviceErrs, 1)
	var acqErr *DeviceAcquisitionError
	assert.True(t, errors.As(deviceErrs[0], &acqErr))

	// 再試行
	require.NoError(t, h.ctrl.StartCamera(ctx))
	stream := newFakeStream()
	h.devices.Resolve(stream)
	stream.FirstFrame()
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().DeviceReady }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 2, h.devices.Calls())
}

func TestController_StreamLossTearsDown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	stream := h.startReady(t, "Alice", "42")

	require.True(t, h.ctrl.RequestCapture(ctx))
	h.capturer.Next(t).Succeed()
	h.ctrl.Wait()
	require.Equal(t, 1, h.ctrl.Snapshot().CapturedCount)

	stream.Lose(errors.New("ffmpeg exited"))
	require.Eventually(t, func() bool { return !h.ctrl.Snapshot().CameraActive }, waitTimeout, 5*time.Millisecond)

	state := h.ctrl.Snapshot()
	assert.False(t, state.DeviceReady)
	assert.Equal(t, 0, state.CapturedCount)
	assert.Equal(t, Identity{Name: "Alice", ID: "42"}, state.Identity())
	assert.Equal(t, PhaseIdentitySet, state.Phase())
	assert.Equal(t, []Identity{{Name: "Alice", ID: "42"}}, h.notifier.Lost())
	assert.Empty(t, h.notifier.Summaries())
}

func TestController_Preview(t *testing.T) {
	h := newHarness(t)
	_, ok := h.ctrl.Preview()
	assert.False(t, ok)

	h.startReady(t, "Alice", "42")
	src, ok := h.ctrl.Preview()
	require.True(t, ok)
	frame, ok := src.LatestJPEG()
	assert.True(t, ok)
	assert.NotEmpty(t, frame)
}

// TestController_InterleavedCaptures は撮影要求と解決をランダムに織り交ぜても
// 同時実行が1件以下で、カウントが成功数と一致することを確認する
func TestController_InterleavedCaptures(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		ctx := context.Background()
		h := newHarness(t)
		h.startReady(t, "Alice", "42")

		var inFlight *pendingCapture
		successes := 0

		for step := 0; step < 60; step++ {
			if rng.Intn(2) == 0 {
				accepted := h.ctrl.RequestCapture(ctx)
				if inFlight != nil {
					require.False(t, accepted, "seed=%d step=%d: 撮影中に要求が受理されました", seed, step)
					continue
				}
				require.True(t, accepted, "seed=%d step=%d", seed, step)
				inFlight = h.capturer.Next(t)
				require.Equal(t, successes+1, inFlight.req.ImageNumber)
				continue
			}

			if inFlight == nil {
				continue
			}
			if rng.Intn(3) == 0 {
				inFlight.Fail(errors.New("upload failed"))
			} else {
				inFlight.Succeed()
				successes++
			}
			inFlight = nil
			h.ctrl.Wait()

			state := h.ctrl.Snapshot()
			require.False(t, state.CaptureInFlight)
			require.Equal(t, successes, state.CapturedCount)
		}

		if inFlight != nil {
			inFlight.Succeed()
			successes++
			h.ctrl.Wait()
		}
		require.Equal(t, successes, h.ctrl.Snapshot().CapturedCount)
		require.Empty(t, h.capturer.calls)

		summary := h.ctrl.StopCamera(ctx)
		if successes == 0 {
			require.Nil(t, summary)
		} else {
			require.NotNil(t, summary)
			require.Equal(t, successes, summary.Count)
		}
	}
}
