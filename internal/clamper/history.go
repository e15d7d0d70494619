package clamper

// HistoryBuffer は1軸分の移動量を保持する固定長リングバッファ
type HistoryBuffer struct {
	slots    []uint32
	index    int
	captured int
}

func newHistoryBuffer(size int) *HistoryBuffer {
	return &HistoryBuffer{slots: make([]uint32, size)}
}

// Push は書き込み位置に値を格納し、位置を進める
// 満杯の場合は最も古い値が上書きされる
func (h *HistoryBuffer) Push(magnitude uint32) {
	h.slots[h.index] = magnitude
	h.index = (h.index + 1) % len(h.slots)
	if h.captured < len(h.slots) {
		h.captured++
	}
}

// Sum は全スロットの合計を返す（未書き込みのスロットは0）
func (h *HistoryBuffer) Sum() uint64 {
	var sum uint64
	for _, v := range h.slots {
		sum += uint64(v)
	}
	return sum
}

// Average は Sum() / Captured() を切り捨てで返す
// Captured() == 0 の場合は0を返すが、呼び出し側はその状態で使ってはならない
func (h *HistoryBuffer) Average() uint32 {
	if h.captured == 0 {
		return 0
	}
	return uint32(h.Sum() / uint64(h.captured))
}

// Reset は全スロットを0にして初期状態に戻す
func (h *HistoryBuffer) Reset() {
	clear(h.slots)
	h.index = 0
	h.captured = 0
}

// Captured は記録済みのサンプル数 (最大でCap())
func (h *HistoryBuffer) Captured() int { return h.captured }

// Cap はバッファの容量
func (h *HistoryBuffer) Cap() int { return len(h.slots) }

// warm はロック判定に十分なサンプルがあるかを返す
// 容量1ではN/2=0になるため、空のバッファは常に不足として扱う
func (h *HistoryBuffer) warm() bool {
	return h.captured > 0 && h.captured >= len(h.slots)/2
}
