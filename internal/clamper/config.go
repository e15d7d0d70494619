package clamper

import (
	"errors"
	"fmt"
	"time"
)

// デフォルト値
const (
	DefaultHistorySize = 24
	DefaultThreshold   = 35
	DefaultHysteresis  = 5
	DefaultDecayTTL    = 300 * time.Millisecond

	// MaxHistorySize は履歴長の上限
	MaxHistorySize = 65535
)

// ErrInvalidConfig は設定値が範囲外であることを示す
var ErrInvalidConfig = errors.New("クランパー設定が不正です")

// Config はクランパー1インスタンス分の設定。構築後は変更されない
type Config struct {
	HistorySize int           `toml:"history_size" yaml:"history_size" json:"history_size"` // イベント数
	Threshold   uint32        `toml:"threshold" yaml:"threshold" json:"threshold"`          // ％
	Hysteresis  uint32        `toml:"hysteresis" yaml:"hysteresis" json:"hysteresis"`       // ％
	DecayTTL    time.Duration `toml:"decay_ttl" yaml:"decay_ttl" json:"decay_ttl"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		HistorySize: DefaultHistorySize,
		Threshold:   DefaultThreshold,
		Hysteresis:  DefaultHysteresis,
		DecayTTL:    DefaultDecayTTL,
	}
}

// Validate は設定値の範囲を検証する
func (c Config) Validate() error {
	if c.HistorySize < 1 || c.HistorySize > MaxHistorySize {
		return fmt.Errorf("%w: history_size=%d (1-%d)", ErrInvalidConfig, c.HistorySize, MaxHistorySize)
	}
	if c.Threshold > 100 {
		return fmt.Errorf("%w: threshold=%d (0-100)", ErrInvalidConfig, c.Threshold)
	}
	if c.Hysteresis > 100 {
		return fmt.Errorf("%w: hysteresis=%d (0-100)", ErrInvalidConfig, c.Hysteresis)
	}
	if c.DecayTTL <= 0 {
		return fmt.Errorf("%w: decay_ttl=%s", ErrInvalidConfig, c.DecayTTL)
	}
	return nil
}
