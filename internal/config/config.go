package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/char5742/keyball-axis-clamper/internal/clamper"
)

// AppName は設定ディレクトリ名
const AppName = "keyball-axis-clamper"

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Clamper       clamper.Config      `toml:"clamper" yaml:"clamper" json:"clamper"`
	DevicePrefs   DevicePrefsConfig   `toml:"device_prefs" yaml:"device_prefs" json:"device_prefs"`
	VirtualDevice VirtualDeviceConfig `toml:"virtual_device" yaml:"virtual_device" json:"virtual_device"`
	Logging       LoggingConfig       `toml:"logging" yaml:"logging" json:"logging"`
	API           APIConfig           `toml:"api" yaml:"api" json:"api"`
}

// DevicePrefsConfig は入力デバイスの選択
type DevicePrefsConfig struct {
	PreferredMouseDevice string `toml:"preferred_mouse_device" yaml:"preferred_mouse_device" json:"preferred_mouse_device"`
}

// VirtualDeviceConfig は出力用の仮想マウスの設定
type VirtualDeviceConfig struct {
	Name       string `toml:"name" yaml:"name" json:"name"`
	UinputPath string `toml:"uinput_path" yaml:"uinput_path" json:"uinput_path"`
}

// LoggingConfig はログ出力の設定
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
}

// APIConfig はAPIサーバーの設定
type APIConfig struct {
	Port int `toml:"port" yaml:"port" json:"port"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Clamper: clamper.DefaultConfig(),
		VirtualDevice: VirtualDeviceConfig{
			Name:       "Keyball Axis Clamper",
			UinputPath: "/dev/uinput",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	if err := c.Clamper.Validate(); err != nil {
		return err
	}
	if c.VirtualDevice.UinputPath == "" {
		return fmt.Errorf("virtual_device.uinput_path が空です")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port が範囲外です: %d", c.API.Port)
	}
	return nil
}

// GetDefaultConfigDir はユーザー設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig は設定ファイルから設定を読み込む
// 拡張子が .yaml / .yml の場合はYAML、それ以外はTOMLとして扱う
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	if isYAML(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return config, fmt.Errorf("YAMLの解析に失敗しました: %w", err)
		}
	} else if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, fmt.Errorf("TOMLの解析に失敗しました: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// SaveConfig は設定をファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(configPath) {
		encoder := yaml.NewEncoder(f)
		defer encoder.Close()
		return encoder.Encode(config)
	}
	return toml.NewEncoder(f).Encode(config)
}
