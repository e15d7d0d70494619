package clamper

import "time"

// Timer は停止可能なワンショットタイマー
type Timer interface {
	Stop() bool
}

// AfterFunc は d 経過後に f を別ゴルーチンで呼び出すタイマーを作成する
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// decayScheduler は無操作タイマーを管理する
// フィールドはClamperのmuで保護される
type decayScheduler struct {
	ttl       time.Duration
	afterFunc AfterFunc
	timer     Timer
	// generation は再設定のたびに増え、古いタイマーの発火を無効にする
	generation uint64
}

// arm は既存のタイマーを止めて新しいタイマーを設定する
func (d *decayScheduler) arm(fire func(generation uint64)) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	generation := d.generation
	d.timer = d.afterFunc(d.ttl, func() { fire(generation) })
}

// expire は発火したタイマーが最新のものであれば取り外してtrueを返す
func (d *decayScheduler) expire(generation uint64) bool {
	if generation != d.generation {
		return false
	}
	d.timer = nil
	return true
}

// cancel は保留中のタイマーを止める
func (d *decayScheduler) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
}

func (d *decayScheduler) pending() bool {
	return d.timer != nil
}
