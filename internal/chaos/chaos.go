package chaos

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"hashpool/internal/worker"
)

// ErrInjected は注入されたパニックの値に含まれる
var ErrInjected = errors.New("chaos: injected fault")

// FaultType は障害の種類を表す
type FaultType int

const (
	FaultNone FaultType = iota
	FaultPanic
	FaultDelay
)

func (f FaultType) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultPanic:
		return "panic"
	case FaultDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// Config は Injector の設定
type Config struct {
	PanicRate float64       // パニックさせるジョブの割合（0〜1）
	DelayRate float64       // 遅延させるジョブの割合（0〜1）
	Delay     time.Duration // Delay 障害の待ち時間
	Seed      int64         // 乱数シード（同じシードなら同じ順に注入される）
}

// DefaultConfig はデフォルト設定を返す（注入なし）
func DefaultConfig() Config {
	return Config{
		Delay: time.Millisecond,
		Seed:  1,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.PanicRate < 0 || c.PanicRate > 1 {
		return fmt.Errorf("panic rate must be between 0 and 1")
	}
	if c.DelayRate < 0 || c.DelayRate > 1 {
		return fmt.Errorf("delay rate must be between 0 and 1")
	}
	if c.PanicRate+c.DelayRate > 1 {
		return fmt.Errorf("panic rate + delay rate must not exceed 1")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must be non-negative")
	}
	return nil
}

// Enabled は何らかの障害が注入されるかどうかを返す
func (c Config) Enabled() bool {
	return c.PanicRate > 0 || c.DelayRate > 0
}

// Stats は注入の統計情報
type Stats struct {
	Wrapped uint64            `json:"wrapped"`
	Panics  uint64            `json:"panics"`
	Delays  uint64            `json:"delays"`
	ByType  map[string]uint64 `json:"faults_by_type"`
}

// Injector はジョブに障害を注入する
type Injector struct {
	config Config

	mu      sync.Mutex
	rng     *rand.Rand
	wrapped uint64
	byType  map[FaultType]uint64
}

// New は新しい Injector を作成する
func New(config Config) *Injector {
	return &Injector{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		byType: make(map[FaultType]uint64),
	}
}

// pick はラップ時点で障害の種類を決める
func (i *Injector) pick() (FaultType, uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.wrapped++
	r := i.rng.Float64()

	fault := FaultNone
	switch {
	case r < i.config.PanicRate:
		fault = FaultPanic
	case r < i.config.PanicRate+i.config.DelayRate:
		fault = FaultDelay
	}
	if fault != FaultNone {
		i.byType[fault]++
	}
	return fault, i.wrapped
}

// Wrap は job に障害を注入したジョブを返す
// 障害の有無は Wrap を呼んだ順に決まる
func (i *Injector) Wrap(job worker.Job) worker.Job {
	fault, n := i.pick()

	switch fault {
	case FaultPanic:
		return func() {
			panic(fmt.Errorf("%w: job %d", ErrInjected, n))
		}
	case FaultDelay:
		delay := i.config.Delay
		return func() {
			time.Sleep(delay)
			job()
		}
	default:
		return job
	}
}

// Stats は統計情報を返す
func (i *Injector) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	byType := make(map[string]uint64, len(i.byType))
	for t, count := range i.byType {
		byType[t.String()] = count
	}
	return Stats{
		Wrapped: i.wrapped,
		Panics:  i.byType[FaultPanic],
		Delays:  i.byType[FaultDelay],
		ByType:  byType,
	}
}
