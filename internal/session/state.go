package session

import (
	"strings"

	"facecap/internal/capture"
)

// Phase はセッションの段階
type Phase string

const (
	PhaseIdle        Phase = "idle"         // 名前・ID未入力
	PhaseIdentitySet Phase = "identity_set" // 名前・ID入力済み、カメラ停止中
	PhaseOpening     Phase = "opening"      // デバイス取得中
	PhaseReady       Phase = "ready"        // 撮影可能
	PhaseCapturing   Phase = "capturing"    // 撮影・送信中
)

// Generation はセッションの世代番号。開始・停止・ストリーム喪失のたびに進む
type Generation uint64

// State は撮影セッションの状態
type State struct {
	SubjectName       string     `json:"subject_name"`
	SubjectID         string     `json:"subject_id"`
	CameraActive      bool       `json:"camera_active"`
	DeviceReady       bool       `json:"device_ready"`
	CapturedCount     int        `json:"captured_count"`
	CaptureInFlight   bool       `json:"capture_in_flight"`
	AcquisitionFailed bool       `json:"acquisition_failed"`
	Generation        Generation `json:"generation"`
	RunID             string     `json:"run_id,omitempty"`
}

// Phase は現在の段階を返す
func (s State) Phase() Phase {
	switch {
	case s.CaptureInFlight:
		return PhaseCapturing
	case s.DeviceReady:
		return PhaseReady
	case s.CameraActive:
		return PhaseOpening
	case s.SubjectName != "" || s.SubjectID != "":
		return PhaseIdentitySet
	default:
		return PhaseIdle
	}
}

// Identity は被写体の識別情報を返す
func (s State) Identity() Identity {
	return Identity{Name: s.SubjectName, ID: s.SubjectID}
}

// WithIdentity は名前・IDを更新する。カメラ動作中は変更できない
func (s State) WithIdentity(name, id string) (State, error) {
	if s.CameraActive {
		return s, ErrIdentityLocked
	}
	s.SubjectName = name
	s.SubjectID = id
	return s, nil
}

// Start はカメラを開始状態にして世代を進める。
// デバイス取得に失敗したまま開始中の場合のみ再試行を許す
func (s State) Start(runID string) (State, error) {
	if s.CameraActive && !s.AcquisitionFailed {
		return s, ErrCameraActive
	}
	if strings.TrimSpace(s.SubjectName) == "" || strings.TrimSpace(s.SubjectID) == "" {
		return s, ErrIdentityRequired
	}

	if !s.CameraActive {
		s.RunID = runID
		s.CapturedCount = 0
	}
	s.CameraActive = true
	s.DeviceReady = false
	s.CaptureInFlight = false
	s.AcquisitionFailed = false
	s.Generation++
	return s, nil
}

// MarkReady は最初のフレーム到着を反映する。世代が古い場合や停止済みの場合は何もしない
func (s State) MarkReady(gen Generation) (State, bool) {
	if gen != s.Generation || !s.CameraActive {
		return s, false
	}
	s.DeviceReady = true
	return s, true
}

// MarkAcquisitionFailed はデバイス取得失敗を反映する。開始中の状態はそのまま
func (s State) MarkAcquisitionFailed(gen Generation) (State, bool) {
	if gen != s.Generation || !s.CameraActive || s.DeviceReady {
		return s, false
	}
	s.AcquisitionFailed = true
	return s, true
}

// BeginCapture は撮影を開始する。準備未完了または撮影中の場合は拒否する
func (s State) BeginCapture() (State, capture.Request, bool) {
	if !s.DeviceReady || s.CaptureInFlight {
		return s, capture.Request{}, false
	}
	s.CaptureInFlight = true
	req := capture.Request{
		SubjectName: s.SubjectName,
		SubjectID:   s.SubjectID,
		ImageNumber: s.CapturedCount + 1,
	}
	return s, req, true
}

// FinishCapture は撮影結果を反映する。成功時のみカウントを進める
func (s State) FinishCapture(gen Generation, success bool) (State, bool) {
	if gen != s.Generation || !s.CaptureInFlight {
		return s, false
	}
	s.CaptureInFlight = false
	if success {
		s.CapturedCount++
	}
	return s, true
}

// Stop はセッションを終了して初期状態に戻す。
// 撮影済みの枚数が1枚以上ならサマリーを返す
func (s State) Stop() (State, *Summary) {
	var summary *Summary
	if s.CapturedCount > 0 {
		summary = &Summary{
			SubjectName: s.SubjectName,
			SubjectID:   s.SubjectID,
			Count:       s.CapturedCount,
			RunID:       s.RunID,
		}
	}
	return State{Generation: s.Generation + 1}, summary
}

// Lose はストリーム喪失による暗黙の終了を反映する。名前・IDは保持する
func (s State) Lose(gen Generation) (State, bool) {
	if gen != s.Generation || !s.CameraActive {
		return s, false
	}
	return State{
		SubjectName: s.SubjectName,
		SubjectID:   s.SubjectID,
		Generation:  s.Generation + 1,
	}, true
}
