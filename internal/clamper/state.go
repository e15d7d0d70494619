package clamper

import (
	"fmt"
	"time"
)

// LockState は軸ロックの状態
type LockState int

const (
	Unlocked LockState = iota
	LockedX
	LockedY
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case LockedX:
		return "locked_x"
	case LockedY:
		return "locked_y"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// MarshalText はJSON出力用に状態名を返す
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText は状態名からLockStateを復元する
func (s *LockState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unlocked":
		*s = Unlocked
	case "locked_x":
		*s = LockedX
	case "locked_y":
		*s = LockedY
	default:
		return fmt.Errorf("不明なロック状態です: %q", text)
	}
	return nil
}

// Transition はロック状態の変化を表す
type Transition struct {
	// Seq はインスタンス内で単調増加する通し番号
	Seq    uint64    `json:"seq"`
	From   LockState `json:"from"`
	To     LockState `json:"to"`
	Shares Shares    `json:"shares"`
	// Decayed は無操作タイマーによるリセットであることを示す
	Decayed bool      `json:"decayed"`
	At      time.Time `json:"at"`
}

// Snapshot はある時点のクランパー状態のコピー
type Snapshot struct {
	State     LockState `json:"state"`
	XCaptured int       `json:"x_captured"`
	YCaptured int       `json:"y_captured"`
	XAverage  uint32    `json:"x_average"`
	YAverage  uint32    `json:"y_average"`
	Shares    Shares    `json:"shares"`
	LastEvent time.Time `json:"last_event"`
	Disabled  bool      `json:"disabled"`
	// Seq は最後に発生したTransitionの通し番号
	Seq uint64 `json:"seq"`
}
