package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"facecap/internal/capture"
	"facecap/internal/session"
)

// EventType はUIに通知するイベントの種類
type EventType string

const (
	EventCaptureSaved    EventType = "capture_saved"
	EventCaptureFailed   EventType = "capture_failed"
	EventDeviceError     EventType = "device_error"
	EventDeviceLost      EventType = "device_lost"
	EventSessionComplete EventType = "session_complete"
)

// Event はUIへの通知
type Event struct {
	Type          EventType        `json:"type"`
	Message       string           `json:"message"`
	ImageNumber   int              `json:"image_number,omitempty"`
	CapturedCount int              `json:"captured_count,omitempty"`
	Summary       *session.Summary `json:"summary,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// subscriberBuffer は購読者ごとのバッファ数。溢れたイベントは破棄する
const subscriberBuffer = 16

// EventBroker はセッションの通知をSSEの購読者に配信する
type EventBroker struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewEventBroker は新しいEventBrokerを作成する
func NewEventBroker() *EventBroker {
	return &EventBroker{subscribers: make(map[chan Event]struct{})}
}

// Subscribe は購読を開始する。戻り値の関数で購読を解除する
func (b *EventBroker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
		})
	}
}

// Subscribers は現在の購読者数を返す
func (b *EventBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *EventBroker) publish(e Event) {
	e.Timestamp = time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			log.Debug().Str("type", string(e.Type)).Msg("購読者のバッファが一杯のためイベントを破棄しました")
		}
	}
}

func (b *EventBroker) CaptureSaved(req capture.Request, ack capture.Ack, count int) {
	msg := ack.Message
	if msg == "" {
		msg = fmt.Sprintf("画像 %d を送信しました", req.ImageNumber)
	}
	b.publish(Event{Type: EventCaptureSaved, Message: msg, ImageNumber: req.ImageNumber, CapturedCount: count})
}

func (b *EventBroker) CaptureFailed(req capture.Request, _ error) {
	b.publish(Event{Type: EventCaptureFailed, Message: "画像を収集サーバーに送信できませんでした", ImageNumber: req.ImageNumber})
}

func (b *EventBroker) DeviceFailed(err error) {
	b.publish(Event{Type: EventDeviceError, Message: err.Error()})
}

func (b *EventBroker) DeviceLost(identity session.Identity, _ error) {
	b.publish(Event{Type: EventDeviceLost, Message: fmt.Sprintf("%s の撮影中にカメラが切断されました", identity.Name)})
}

func (b *EventBroker) SessionComplete(summary session.Summary) {
	b.publish(Event{
		Type:          EventSessionComplete,
		Message:       fmt.Sprintf("撮影完了: %s の画像を %d 枚取得しました", summary.SubjectName, summary.Count),
		CapturedCount: summary.Count,
		Summary:       &summary,
	})
}
