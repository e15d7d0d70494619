// Package clamper は相対ポインタ移動の軸ロックフィルタを実装する
//
// 一方の軸の移動が支配的になると、もう一方の軸のイベントを抑制する。
// ロックの解除にはヒステリシス分の余裕が必要で、一定時間操作がなければ
// 履歴とロック状態は破棄される。
package clamper

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/char5742/keyball-axis-clamper/internal/event"
)

// Clamper は1デバイス分のフィルタ状態を保持する
// Process と無操作タイマーの発火は mu で排他される
type Clamper struct {
	mu        sync.Mutex
	cfg       Config
	x, y      *HistoryBuffer
	state     LockState
	shares    Shares
	lastEvent time.Time
	decay     decayScheduler
	disabled  bool
	closed    bool
	seq       uint64

	now      func() time.Time
	logger   *log.Entry
	observer func(Transition)
}

// Option はClamperの任意設定
type Option func(*Clamper)

// WithLogger はログ出力先を設定する
func WithLogger(logger *log.Entry) Option {
	return func(c *Clamper) { c.logger = logger }
}

// WithClock は現在時刻の取得方法を差し替える
func WithClock(now func() time.Time) Option {
	return func(c *Clamper) { c.now = now }
}

// WithAfterFunc は無操作タイマーの実装を差し替える
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Clamper) { c.decay.afterFunc = fn }
}

// WithObserver はロック状態が変化するたびに呼ばれる関数を登録する
// 関数はmuの外で呼ばれるが、ブロックしてはならない。
// イベント処理とタイマーの発火は別のゴルーチンから通知されるため、
// 到着順は保証されない。順序はTransition.Seqで判断する
func WithObserver(fn func(Transition)) Option {
	return func(c *Clamper) { c.observer = fn }
}

// New は設定を検証してClamperを作成する
//
// 設定が不正な場合もnilではなく、常にイベントを素通しする無効化済みの
// インスタンスをエラーと一緒に返す。
func New(cfg Config, opts ...Option) (*Clamper, error) {
	c := &Clamper{
		cfg:    cfg,
		now:    time.Now,
		logger: log.NewEntry(log.StandardLogger()),
		decay: decayScheduler{
			ttl:       cfg.DecayTTL,
			afterFunc: systemAfterFunc,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := cfg.Validate(); err != nil {
		c.disabled = true
		c.logger.WithError(err).Error("クランパーを初期化できません。パススルーモードで動作します")
		return c, err
	}

	c.x = newHistoryBuffer(cfg.HistorySize)
	c.y = newHistoryBuffer(cfg.HistorySize)

	c.logger.WithFields(log.Fields{
		"history_size": cfg.HistorySize,
		"threshold":    cfg.Threshold,
		"hysteresis":   cfg.Hysteresis,
		"decay_ttl":    cfg.DecayTTL,
	}).Debug("クランパーを初期化しました")
	return c, nil
}

// Config は構築時の設定を返す
func (c *Clamper) Config() Config {
	return c.cfg
}

// Disabled はパススルーモードかどうかを返す
func (c *Clamper) Disabled() bool {
	return c.disabled
}

// Process は1イベントを処理し、通過可否を返す
//
// X/Y以外のイベントはそのまま通す。抑制する場合はevの値を0にし、
// Syncをfalseにする。同一インスタンスへの呼び出しは直列であること。
func (c *Clamper) Process(ev *event.Event) Decision {
	axis := ev.Axis()
	if axis == event.AxisNone || c.disabled {
		return Forward
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Forward
	}

	c.lastEvent = c.now()
	c.decay.arm(c.expire)

	if axis == event.AxisX {
		c.x.Push(ev.Magnitude())
	} else {
		c.y.Push(ev.Magnitude())
	}

	prev := c.state
	next, shares, decided := classify(c.x, c.y, c.state, c.cfg.Threshold, c.cfg.Hysteresis)
	if decided {
		c.state = next
		c.shares = shares
	}
	changed := decided && next != prev
	var tr Transition
	if changed {
		tr = c.transitionLocked(prev, next, shares, c.lastEvent)
	}
	decision := Gate(c.state, axis)
	c.mu.Unlock()

	decision.apply(ev)

	if changed {
		c.logger.WithFields(log.Fields{
			"from":      prev,
			"to":        next,
			"x_percent": shares.X,
			"y_percent": shares.Y,
			"seq":       tr.Seq,
		}).Debug("ロック状態が変化しました")
		c.notify(tr)
	}
	return decision
}

// expire は無操作タイマーから呼ばれる
func (c *Clamper) expire(generation uint64) {
	c.mu.Lock()
	if c.closed || !c.decay.expire(generation) {
		c.mu.Unlock()
		return
	}
	prev := c.resetLocked()
	var tr Transition
	if prev != Unlocked {
		tr = c.transitionLocked(prev, Unlocked, Shares{}, c.now())
		tr.Decayed = true
	}
	c.mu.Unlock()

	c.logger.WithField("previous", prev).Debug("無操作のため履歴をリセットしました")
	if prev != Unlocked {
		c.notify(tr)
	}
}

// Reset は履歴とロック状態を初期化する
func (c *Clamper) Reset() {
	if c.disabled {
		return
	}
	c.mu.Lock()
	c.decay.cancel()
	prev := c.resetLocked()
	var tr Transition
	if prev != Unlocked {
		tr = c.transitionLocked(prev, Unlocked, Shares{}, c.now())
	}
	c.mu.Unlock()

	if prev != Unlocked {
		c.notify(tr)
	}
}

// transitionLocked は通し番号を振ったTransitionを作る。muを保持して呼ぶこと
func (c *Clamper) transitionLocked(from, to LockState, shares Shares, at time.Time) Transition {
	c.seq++
	return Transition{Seq: c.seq, From: from, To: to, Shares: shares, At: at}
}

func (c *Clamper) resetLocked() LockState {
	prev := c.state
	c.x.Reset()
	c.y.Reset()
	c.state = Unlocked
	c.shares = Shares{}
	return prev
}

// Close は保留中のタイマーを止める。以降のイベントは素通しになる
func (c *Clamper) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.decay.cancel()
}

// Snapshot は現在の状態のコピーを返す
func (c *Clamper) Snapshot() Snapshot {
	if c.disabled {
		return Snapshot{State: Unlocked, Disabled: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		XCaptured: c.x.Captured(),
		YCaptured: c.y.Captured(),
		XAverage:  c.x.Average(),
		YAverage:  c.y.Average(),
		Shares:    c.shares,
		LastEvent: c.lastEvent,
		Seq:       c.seq,
	}
}

func (c *Clamper) notify(t Transition) {
	if c.observer != nil {
		c.observer(t)
	}
}
