package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持するレイテンシの最大数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxLatencySamples: 1000,
	}
}

// Metrics はジョブ実行のメトリクスを収集する
type Metrics struct {
	totalJobs     atomic.Uint64
	completedJobs atomic.Uint64
	panickedJobs  atomic.Uint64
	totalLatency  atomic.Uint64 // ナノ秒

	mu                sync.RWMutex
	startTime         time.Time
	lastResetTime     time.Time
	windowJobs        uint64
	latencies         []time.Duration
	maxLatencySamples int
}

// New はデフォルト設定でメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	samples := config.MaxLatencySamples
	if samples <= 0 {
		samples = DefaultConfig().MaxLatencySamples
	}
	now := time.Now()
	return &Metrics{
		startTime:         now,
		lastResetTime:     now,
		latencies:         make([]time.Duration, 0, samples),
		maxLatencySamples: samples,
	}
}

// RecordSuccess は正常終了したジョブを記録する
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.totalJobs.Add(1)
	m.completedJobs.Add(1)
	m.totalLatency.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowJobs++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// RecordPanic はパニックで終了したジョブを記録する
// パニックしたジョブのレイテンシはP99サンプルに含めない
func (m *Metrics) RecordPanic(latency time.Duration) {
	m.totalJobs.Add(1)
	m.panickedJobs.Add(1)
	m.totalLatency.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowJobs++
	m.mu.Unlock()
}

// TotalJobs は実行済みジョブの総数を返す
func (m *Metrics) TotalJobs() uint64 {
	return m.totalJobs.Load()
}

// CompletedJobs は正常終了したジョブ数を返す
func (m *Metrics) CompletedJobs() uint64 {
	return m.completedJobs.Load()
}

// PanickedJobs はパニックしたジョブ数を返す
func (m *Metrics) PanickedJobs() uint64 {
	return m.panickedJobs.Load()
}

// JobsPerSecond は直近のウィンドウでのスループットを返す
func (m *Metrics) JobsPerSecond() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.lastResetTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.windowJobs) / elapsed
}

// OverallJobsPerSecond は開始からの平均スループットを返す
func (m *Metrics) OverallJobsPerSecond() float64 {
	m.mu.RLock()
	start := m.startTime
	m.mu.RUnlock()

	elapsed := time.Since(start).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.totalJobs.Load()) / elapsed
}

// AverageLatency は平均実行時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.totalJobs.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatency.Load() / total)
}

// P99Latency はP99実行時間を返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// PanicRate はパニック率を返す（0.0〜1.0）
func (m *Metrics) PanicRate() float64 {
	total := m.totalJobs.Load()
	if total == 0 {
		return 0
	}
	return float64(m.panickedJobs.Load()) / float64(total)
}

// Reset はウィンドウメトリクスをリセットする
// 累積カウンタはリセットしない
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowJobs = 0
	m.lastResetTime = time.Now()
	m.latencies = m.latencies[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalJobs            uint64        `json:"total_jobs"`
	CompletedJobs        uint64        `json:"completed_jobs"`
	PanickedJobs         uint64        `json:"panicked_jobs"`
	JobsPerSecond        float64       `json:"jobs_per_second"`
	OverallJobsPerSecond float64       `json:"overall_jobs_per_second"`
	AverageLatency       time.Duration `json:"average_latency_ns"`
	P99Latency           time.Duration `json:"p99_latency_ns"`
	PanicRate            float64       `json:"panic_rate"`
	Elapsed              time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	start := m.startTime
	m.mu.RUnlock()

	return Snapshot{
		TotalJobs:            m.TotalJobs(),
		CompletedJobs:        m.CompletedJobs(),
		PanickedJobs:         m.PanickedJobs(),
		JobsPerSecond:        m.JobsPerSecond(),
		OverallJobsPerSecond: m.OverallJobsPerSecond(),
		AverageLatency:       m.AverageLatency(),
		P99Latency:           m.P99Latency(),
		PanicRate:            m.PanicRate(),
		Elapsed:              time.Since(start),
	}
}
