package camera

import (
	"sort"

	"github.com/pkg/errors"

	"facecap/internal/session"
)

// SourceCreator はデバイス作成関数の型
type SourceCreator func(settings Settings) (session.DeviceSource, error)

// DeviceFactory は種類ごとにデバイスを作成する
type DeviceFactory struct {
	creators map[SourceType]SourceCreator
}

// NewDeviceFactory は標準のデバイスを登録したファクトリーを作成する
func NewDeviceFactory(discovery Discovery) *DeviceFactory {
	f := &DeviceFactory{creators: make(map[SourceType]SourceCreator)}

	f.Register(SourceTypeUSB, func(s Settings) (session.DeviceSource, error) {
		return NewUSBDevice(s, discovery), nil
	})
	f.Register(SourceTypePattern, func(s Settings) (session.DeviceSource, error) {
		return NewPatternDevice(s), nil
	})

	return f
}

// Register はデバイス作成関数を登録する
func (f *DeviceFactory) Register(sourceType SourceType, creator SourceCreator) {
	f.creators[sourceType] = creator
}

// Create はデバイスを作成する
func (f *DeviceFactory) Create(sourceType SourceType, settings Settings) (session.DeviceSource, error) {
	creator, exists := f.creators[sourceType]
	if !exists {
		return nil, errors.Errorf("サポートされていないソースタイプ: %s", sourceType)
	}
	return creator(settings)
}

// SupportedTypes はサポートされているソースタイプを名前順に返す
func (f *DeviceFactory) SupportedTypes() []SourceType {
	types := make([]SourceType, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
