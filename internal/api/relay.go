package api

import (
	"github.com/char5742/keyball-axis-clamper/internal/clamper"
	"github.com/char5742/keyball-axis-clamper/internal/event"
)

// EventWriter はフィルタ後のイベントの出力先
type EventWriter interface {
	WriteEvents(events []event.Event) error
}

// relay は入力イベントをSYN_REPORTまでの1フレーム単位でまとめ、
// クランパーを通した結果を出力する
type relay struct {
	clamper    *clamper.Clamper
	out        EventWriter
	frame      []event.Event
	suppressed int
}

func newRelay(c *clamper.Clamper, out EventWriter) *relay {
	return &relay{clamper: c, out: out, frame: make([]event.Event, 0, 8)}
}

// handle は1イベントを処理する。フレームが完成したときだけ書き込む
func (r *relay) handle(ev event.Event) error {
	if !ev.IsReport() {
		if r.clamper.Process(&ev) == clamper.Suppress {
			r.suppressed++
			return nil
		}
		r.frame = append(r.frame, ev)
		return nil
	}

	defer r.resetFrame()

	// すべて抑制されたフレームは同期イベントごと捨てる
	if len(r.frame) == 0 && r.suppressed > 0 {
		return nil
	}
	r.frame = append(r.frame, ev)
	return r.out.WriteEvents(r.frame)
}

func (r *relay) resetFrame() {
	r.frame = r.frame[:0]
	r.suppressed = 0
}

// setClamper は設定変更時にクランパーを差し替える
func (r *relay) setClamper(c *clamper.Clamper) {
	r.clamper = c
}
