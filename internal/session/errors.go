package session

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrIdentityRequired は名前またはIDが空のまま開始しようとした
	ErrIdentityRequired = errors.New("名前とIDの両方が必要です")
	// ErrIdentityLocked はカメラ動作中に名前・IDを変更しようとした
	ErrIdentityLocked = errors.New("カメラ動作中は名前とIDを変更できません")
	// ErrCameraActive はカメラが既に開始されている
	ErrCameraActive = errors.New("カメラは既に開始されています")
)

// DeviceAcquisitionError はカメラデバイスの取得失敗を表す
type DeviceAcquisitionError struct {
	Err error
}

func (e *DeviceAcquisitionError) Error() string {
	return fmt.Sprintf("カメラの取得に失敗: %v", e.Err)
}

func (e *DeviceAcquisitionError) Unwrap() error {
	return e.Err
}
