package camera

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"facecap/internal/session"
)

// streamStarter は連続キャプチャを開始できるもの
type streamStarter interface {
	StartStream(ctx context.Context) (<-chan []byte, <-chan error, error)
}

// USBDevice はV4L2のUSBカメラから映像ストリームを取得する
type USBDevice struct {
	settings  Settings
	discovery Discovery

	// テストで差し替える
	newCapturer func(device string, s Settings) streamStarter
}

// NewUSBDevice は新しいUSBDeviceを作成する
func NewUSBDevice(settings Settings, discovery Discovery) *USBDevice {
	if discovery == nil {
		discovery = NewLinuxDiscovery()
	}
	return &USBDevice{
		settings:  settings.withDefaults(),
		discovery: discovery,
		newCapturer: func(device string, s Settings) streamStarter {
			return NewV4L2Capturer(device, s.Width, s.Height, s.FPS)
		},
	}
}

// RequestStream はカメラを開いてストリームを返す。
// ストリームはトラック停止まで ctx のキャンセルの影響を受けない
func (d *USBDevice) RequestStream(ctx context.Context) (session.Stream, error) {
	device := d.settings.Device
	if device == "" {
		found, err := FirstDevice(ctx, d.discovery)
		if err != nil {
			return nil, err
		}
		device = found
	} else if !d.discovery.IsDeviceAvailable(ctx, device) {
		return nil, errors.Errorf("デバイスが利用できません: %s", device)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, exit, err := d.newCapturer(device, d.settings).StartStream(streamCtx)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "カメラの起動に失敗: %s", device)
	}

	var stopped atomic.Bool
	stream := newFrameStream()
	stream.tracks = []session.Track{newTrack("video", func() {
		stopped.Store(true)
		cancel()
	})}

	go func() {
		defer cancel()
		for frame := range frames {
			stream.publish(frame)
		}

		exitErr := <-exit
		if stopped.Load() {
			stream.finish(nil)
			return
		}
		if exitErr == nil {
			exitErr = errors.Errorf("カメラのストリームが終了しました: %s", device)
		}
		stream.finish(exitErr)
	}()

	name := device
	if info, err := d.discovery.GetDeviceInfo(ctx, device); err == nil {
		name = info.Name
	}

	log.Info().
		Str("device", device).
		Str("name", name).
		Int("width", d.settings.Width).
		Int("height", d.settings.Height).
		Int("fps", d.settings.FPS).
		Msg("USBカメラのストリームを開始しました")

	return stream, nil
}
