package clamper

// Shares は直近の判定で計算した各軸の割合（％）
type Shares struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// classify は両軸の履歴から次のロック状態を決める
// decided がfalseの場合は判定を見送ったことを示し、状態は変わらない
func classify(x, y *HistoryBuffer, current LockState, threshold, hysteresis uint32) (next LockState, shares Shares, decided bool) {
	// サンプルが少ないうちはロックしない
	if !x.warm() || !y.warm() {
		return current, Shares{}, false
	}

	xAvg := uint64(x.Average())
	yAvg := uint64(y.Average())
	total := xAvg + yAvg
	if total == 0 {
		return current, Shares{}, false
	}

	shares = Shares{
		X: uint32(xAvg * 100 / total),
		Y: uint32(yAvg * 100 / total),
	}

	release := uint32(0)
	if threshold > hysteresis {
		release = threshold - hysteresis
	}

	next = current
	switch current {
	case Unlocked:
		// 同率の場合はXを優先する
		if shares.X >= threshold {
			next = LockedX
		} else if shares.Y >= threshold {
			next = LockedY
		}
	case LockedX:
		if shares.X < release {
			next = Unlocked
		}
	case LockedY:
		if shares.Y < release {
			next = Unlocked
		}
	}
	return next, shares, true
}
