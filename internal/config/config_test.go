package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/char5742/keyball-axis-clamper/internal/clamper"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Clamper.HistorySize != 24 || cfg.Clamper.Threshold != 35 || cfg.Clamper.Hysteresis != 5 {
		t.Errorf("unexpected clamper defaults %+v", cfg.Clamper)
	}
	if cfg.Clamper.DecayTTL <= 0 {
		t.Errorf("expected positive decay ttl")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate: %v", err)
	}
}

func TestLoadConfig_MissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Clamper != clamper.DefaultConfig() {
		t.Errorf("expected default clamper config, got %+v", cfg.Clamper)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected default config to be written: %v", err)
	}

	// 書き出した内容を読み直しても同じになる
	again, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *again != *cfg {
		t.Errorf("expected reloaded config to match, got %+v", again)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[clamper]
history_size = 16
threshold = 40
hysteresis = 8
decay_ttl = "250ms"

[device_prefs]
preferred_mouse_device = "usb-Keyball-event-mouse"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := clamper.Config{HistorySize: 16, Threshold: 40, Hysteresis: 8, DecayTTL: 250 * time.Millisecond}
	if cfg.Clamper != want {
		t.Errorf("expected %+v, got %+v", want, cfg.Clamper)
	}
	if cfg.DevicePrefs.PreferredMouseDevice != "usb-Keyball-event-mouse" {
		t.Errorf("unexpected device prefs %+v", cfg.DevicePrefs)
	}
	// 未指定のセクションはデフォルトのまま
	if cfg.API.Port != 8080 || cfg.VirtualDevice.UinputPath != "/dev/uinput" {
		t.Errorf("expected defaults for unspecified sections, got %+v %+v", cfg.API, cfg.VirtualDevice)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
clamper:
  history_size: 12
  threshold: 50
  hysteresis: 10
  decay_ttl: 1s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Clamper.HistorySize != 12 || cfg.Clamper.DecayTTL != time.Second {
		t.Errorf("unexpected clamper config %+v", cfg.Clamper)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestSaveConfig_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := DefaultConfig()
	cfg.Clamper.Threshold = 60
	cfg.Clamper.DecayTTL = 750 * time.Millisecond
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("expected %+v, got %+v", cfg, loaded)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[clamper]\nthreshold = 150\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, clamper.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if err := os.WriteFile(path, []byte("[clamper\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("expected parse error")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { changes <- cfg })
	}()

	// 監視開始を待ってから書き換える
	time.Sleep(100 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Clamper.Threshold = 45
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	select {
	case got := <-changes:
		if got.Clamper.Threshold != 45 {
			t.Errorf("expected threshold=45, got %d", got.Clamper.Threshold)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("watch did not stop")
	}
}
