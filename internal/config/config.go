package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Capture   CaptureConfig   `yaml:"capture"`
	Collector CollectorConfig `yaml:"collector"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig は撮影端末のHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`        // リッスンするホスト
	Port int    `yaml:"port" validate:"min=1,max=65535"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト（0でストリーミング用に無効）
}

// CameraConfig はカメラの設定
type CameraConfig struct {
	Source string `yaml:"source" validate:"oneof=usb pattern"` // 映像ソースの種類
	Device string `yaml:"device"`                              // デバイスパス（空なら自動検出）
	FPS    int    `yaml:"fps" validate:"min=1,max=120"`
	Width  int    `yaml:"width" validate:"min=1"`
	Height int    `yaml:"height" validate:"min=1"`
}

// CaptureConfig は送信画像の設定
type CaptureConfig struct {
	Width         int           `yaml:"width" validate:"min=1"`
	Height        int           `yaml:"height" validate:"min=1"`
	Quality       int           `yaml:"quality" validate:"min=1,max=100"` // JPEG品質
	UploadTimeout time.Duration `yaml:"upload_timeout"`                   // 0でタイムアウトなし
}

// CollectorConfig は収集サーバーの設定
type CollectorConfig struct {
	URL        string `yaml:"url" validate:"required,url"` // 撮影端末からの送信先
	Host       string `yaml:"host" validate:"required"`    // 収集サーバーのリッスンホスト
	Port       int    `yaml:"port" validate:"min=1,max=65535"`
	DatasetDir string `yaml:"dataset_dir" validate:"required"` // 画像の保存先
}

// LogConfig はログの設定
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0,
		},
		Camera: CameraConfig{
			Source: "usb",
			FPS:    15,
			Width:  640,
			Height: 480,
		},
		Capture: CaptureConfig{
			Width:         640,
			Height:        480,
			Quality:       92,
			UploadTimeout: 30 * time.Second,
		},
		Collector: CollectorConfig{
			URL:        "http://localhost:8000",
			Host:       "0.0.0.0",
			Port:       8000,
			DatasetDir: "dataset",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load は設定を読み込む。
// デフォルト値、YAMLファイル（path が空でなければ）、環境変数の順に上書きして検証する
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "設定ファイルの読み込みに失敗: %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "設定ファイルの解析に失敗: %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "設定の検証に失敗")
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() error {
	setString("FACECAP_SERVER_HOST", &c.Server.Host)
	setString("FACECAP_CAMERA_SOURCE", &c.Camera.Source)
	setString("FACECAP_CAMERA_DEVICE", &c.Camera.Device)
	setString("FACECAP_COLLECTOR_URL", &c.Collector.URL)
	setString("FACECAP_COLLECTOR_HOST", &c.Collector.Host)
	setString("FACECAP_DATASET_DIR", &c.Collector.DatasetDir)
	setString("FACECAP_LOG_LEVEL", &c.Log.Level)

	// PORT より FACECAP_SERVER_PORT を優先する
	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Server.Port},
		{"FACECAP_SERVER_PORT", &c.Server.Port},
		{"FACECAP_CAMERA_FPS", &c.Camera.FPS},
		{"FACECAP_CAPTURE_QUALITY", &c.Capture.Quality},
		{"FACECAP_COLLECTOR_PORT", &c.Collector.Port},
	}
	for _, e := range ints {
		if err := setInt(e.key, e.dst); err != nil {
			return err
		}
	}

	if value := os.Getenv("FACECAP_LOG_PRETTY"); value != "" {
		pretty, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "環境変数 FACECAP_LOG_PRETTY が不正です: %q", value)
		}
		c.Log.Pretty = pretty
	}
	if value := os.Getenv("FACECAP_UPLOAD_TIMEOUT"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(err, "環境変数 FACECAP_UPLOAD_TIMEOUT が不正です: %q", value)
		}
		c.Capture.UploadTimeout = d
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// ServerAddress は撮影端末サーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CollectorAddress は収集サーバーのリッスンアドレスを返す
func (c *Config) CollectorAddress() string {
	return fmt.Sprintf("%s:%d", c.Collector.Host, c.Collector.Port)
}

// setString は環境変数が設定されていれば上書きする
func setString(key string, dst *string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// setInt は環境変数を整数として読み込み、設定されていれば上書きする
func setInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(err, "環境変数 %s が整数ではありません: %q", key, value)
	}
	*dst = n
	return nil
}
