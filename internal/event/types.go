package event

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"syscall"
)

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント
	Msc = 0x04 // その他のイベント

	RelX      = 0x0 // X軸の相対移動
	RelY      = 0x1 // Y軸の相対移動
	RelHWheel = 0x6 // 水平ホイール
	RelWheel  = 0x8 // ホイールの相対移動

	SynReport = 0 // イベント報告の同期

	MouseBtnLeft   = 0x110 // マウス左ボタン
	MouseBtnRight  = 0x111 // マウス右ボタン
	MouseBtnMiddle = 0x112 // マウス中ボタン
	MouseBtnSide   = 0x113 // サイドボタン
	MouseBtnExtra  = 0x114 // エクストラボタン
)

// Size はカーネルのinput_event構造体のバイト数 (64bit環境)
const Size = 24

// Axis は相対移動の軸を表す
type Axis int

const (
	AxisNone Axis = iota
	AxisX
	AxisY
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "none"
	}
}

// Event は入力イベントを表す構造体
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
	// Sync がfalseのイベントは下流へ送られない
	Sync bool
}

// NewRel は相対移動イベントを作成する
func NewRel(axis Axis, value int32) Event {
	ev := Event{Type: Rel, Value: value, Sync: true}
	if axis == AxisY {
		ev.Code = RelY
	}
	return ev
}

// Report はSYN_REPORTイベントを返す
func Report() Event {
	return Event{Type: Syn, Code: SynReport, Sync: true}
}

// Axis はイベントがX/Yの相対移動であればその軸を返す
func (e *Event) Axis() Axis {
	if e.Type != Rel {
		return AxisNone
	}
	switch e.Code {
	case RelX:
		return AxisX
	case RelY:
		return AxisY
	}
	return AxisNone
}

// IsReport はフレーム終端のSYN_REPORTかどうかを返す
func (e *Event) IsReport() bool {
	return e.Type == Syn && e.Code == SynReport
}

// Magnitude は値の絶対値を返す
func (e *Event) Magnitude() uint32 {
	if e.Value < 0 {
		return uint32(-int64(e.Value))
	}
	return uint32(e.Value)
}

// wireEvent はカーネルとやり取りするバイナリ表現
type wireEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Decode は24バイトのinput_eventをEventに変換する
func Decode(buf []byte) (Event, error) {
	if len(buf) < Size {
		return Event{}, fmt.Errorf("イベント長が不足しています: %d バイト", len(buf))
	}
	var w wireEvent
	if err := binary.Read(bytes.NewReader(buf[:Size]), binary.LittleEndian, &w); err != nil {
		return Event{}, fmt.Errorf("イベントのデコードに失敗しました: %w", err)
	}
	return Event{
		Time:  syscall.Timeval{Sec: w.Sec, Usec: w.Usec},
		Type:  w.Type,
		Code:  w.Code,
		Value: w.Value,
		Sync:  true,
	}, nil
}

// Encode はEventをカーネル形式のバイト列に変換する
func Encode(e Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := wireEvent{
		Sec:   int64(e.Time.Sec),
		Usec:  int64(e.Time.Usec),
		Type:  e.Type,
		Code:  e.Code,
		Value: e.Value,
	}
	if err := binary.Write(buf, binary.LittleEndian, w); err != nil {
		return nil, fmt.Errorf("イベントのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
