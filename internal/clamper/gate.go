package clamper

import "github.com/char5742/keyball-axis-clamper/internal/event"

// Decision はイベントを下流へ流すかどうか
type Decision int

const (
	Forward Decision = iota
	Suppress
)

func (d Decision) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "forward"
}

// Gate はロック状態とイベントの軸から通過可否を決める
func Gate(state LockState, axis event.Axis) Decision {
	switch {
	case state == LockedX && axis == event.AxisY:
		return Suppress
	case state == LockedY && axis == event.AxisX:
		return Suppress
	}
	return Forward
}

// apply は抑制対象のイベントの値を0にし、同期対象から外す
func (d Decision) apply(ev *event.Event) {
	if d != Suppress {
		return
	}
	ev.Value = 0
	ev.Sync = false
}
