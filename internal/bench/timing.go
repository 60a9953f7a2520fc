package bench

import "time"

// MinElapsed は計測結果の下限
// これより短い経過時間は MinElapsed として扱う
const MinElapsed = time.Microsecond

// Timing は1つの戦略の計測結果
type Timing struct {
	Strategy string    `json:"strategy"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Lines    int       `json:"lines"`
	Records  uint64    `json:"records"`
	Bytes    uint64    `json:"bytes"`
	Panicked uint64    `json:"panicked"`
}

// Elapsed は経過時間を返す（下限 MinElapsed）
func (t Timing) Elapsed() time.Duration {
	d := t.End.Sub(t.Start)
	if d < MinElapsed {
		return MinElapsed
	}
	return d
}

// Speedup は base に対して other が何倍速いかを返す
// 1より大きければ other の方が速い
func Speedup(base, other Timing) float64 {
	return float64(base.Elapsed()) / float64(other.Elapsed())
}
