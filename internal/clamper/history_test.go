package clamper

import "testing"

func TestHistoryBuffer_CapturedNeverExceedsCap(t *testing.T) {
	h := newHistoryBuffer(5)
	for i := 0; i < 23; i++ {
		h.Push(uint32(i))
		if h.Captured() > h.Cap() {
			t.Fatalf("captured=%d exceeds cap=%d after %d pushes", h.Captured(), h.Cap(), i+1)
		}
	}
	if h.Captured() != 5 {
		t.Errorf("expected captured=5, got %d", h.Captured())
	}
}

func TestHistoryBuffer_ZeroPushesAverageZero(t *testing.T) {
	h := newHistoryBuffer(8)
	for i := 0; i < 3; i++ {
		h.Push(40)
	}
	for i := 0; i < 8; i++ {
		h.Push(0)
	}
	if avg := h.Average(); avg != 0 {
		t.Errorf("expected average=0, got %d", avg)
	}
}

func TestHistoryBuffer_OverwritesOldest(t *testing.T) {
	h := newHistoryBuffer(3)
	h.Push(1)
	h.Push(2)
	h.Push(3)
	h.Push(10) // 1を上書き

	if sum := h.Sum(); sum != 15 {
		t.Errorf("expected sum=15, got %d", sum)
	}
	if avg := h.Average(); avg != 5 {
		t.Errorf("expected average=5, got %d", avg)
	}
}

func TestHistoryBuffer_AverageTruncates(t *testing.T) {
	h := newHistoryBuffer(3)
	h.Push(2)
	h.Push(2)
	h.Push(3)
	if avg := h.Average(); avg != 2 {
		t.Errorf("expected truncated average=2, got %d", avg)
	}
}

// 未書き込みスロットも合計に含まれ、記録数で割られる
func TestHistoryBuffer_AverageUsesCapturedCount(t *testing.T) {
	h := newHistoryBuffer(4)
	h.Push(9)
	h.Push(3)
	if avg := h.Average(); avg != 6 {
		t.Errorf("expected average=6, got %d", avg)
	}

	// 一周した後は古い値が残らない
	for i := 0; i < 4; i++ {
		h.Push(1)
	}
	if avg := h.Average(); avg != 1 {
		t.Errorf("expected average=1 after wrap, got %d", avg)
	}
}

func TestHistoryBuffer_Reset(t *testing.T) {
	h := newHistoryBuffer(4)
	for i := 0; i < 6; i++ {
		h.Push(7)
	}
	h.Reset()

	if h.Captured() != 0 {
		t.Errorf("expected captured=0, got %d", h.Captured())
	}
	if h.Sum() != 0 {
		t.Errorf("expected sum=0, got %d", h.Sum())
	}
	if h.index != 0 {
		t.Errorf("expected index=0, got %d", h.index)
	}
	if h.Average() != 0 {
		t.Errorf("expected average=0 on empty buffer, got %d", h.Average())
	}
}

func TestHistoryBuffer_Warm(t *testing.T) {
	h := newHistoryBuffer(5) // 5/2 = 2
	h.Push(1)
	if h.warm() {
		t.Errorf("expected cold with 1 sample")
	}
	h.Push(1)
	if !h.warm() {
		t.Errorf("expected warm with 2 samples")
	}

	// 容量1でも空のままでは判定しない
	one := newHistoryBuffer(1)
	if one.warm() {
		t.Errorf("expected empty size-1 buffer to be cold")
	}
	one.Push(0)
	if !one.warm() {
		t.Errorf("expected size-1 buffer to be warm after one sample")
	}
}
