package bench

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"

	"hashpool/internal/chaos"
	"hashpool/internal/events"
	"hashpool/internal/logger"
	"hashpool/internal/metrics"
	"hashpool/internal/sink"
	"hashpool/internal/worker"
)

var log = logger.For("bench")

// ErrAlreadyRunning は実行中の Engine を再度 Run した場合に返される
var ErrAlreadyRunning = errors.New("bench: run already in progress")

// Config はベンチマーク実行の設定
type Config struct {
	Name        string // 実行名
	Description string // 説明
	Input       string // 入力ファイル（1行1レコード）
	OutputDir   string // 出力ディレクトリ

	Workers    int      // pool / errgroup の同時実行数
	Chunks     int      // chunked のチャンク数
	BufferSize int      // 出力バッファサイズ
	Strategies []string // 実行する戦略（順序どおりに実行）
	Baseline   string   // Speedup の基準とする戦略

	Chaos chaos.Config // pool 戦略に注入する障害
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:        "default",
		Description: "Compare every strategy against the sequential baseline",
		OutputDir:   "out",
		Workers:     runtime.GOMAXPROCS(0),
		Chunks:      4,
		BufferSize:  sink.DefaultBufferSize,
		Strategies:  Strategies(),
		Baseline:    StrategySingle,
		Chaos:       chaos.DefaultConfig(),
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input file is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Chunks < 1 {
		return fmt.Errorf("chunks must be at least 1")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if !IsStrategy(s) {
			return fmt.Errorf("unknown strategy: %s (available: %v)", s, Strategies())
		}
		if seen[s] {
			return fmt.Errorf("duplicate strategy: %s", s)
		}
		seen[s] = true
	}
	if c.Baseline != "" && !seen[c.Baseline] {
		return fmt.Errorf("baseline %s is not among the configured strategies", c.Baseline)
	}
	if err := c.Chaos.Validate(); err != nil {
		return fmt.Errorf("invalid chaos config: %w", err)
	}
	return nil
}

// OutputPath は戦略の出力ファイルパスを返す
func (c Config) OutputPath(strategy string) string {
	return filepath.Join(c.OutputDir, strategy+".txt")
}

// StrategyResult は戦略ごとの結果
type StrategyResult struct {
	Timing
	Elapsed time.Duration `json:"elapsed_ns"`
	Speedup float64       `json:"speedup,omitempty"`
	Output  string        `json:"output"`
	Error   string        `json:"error,omitempty"`
}

// Failed は戦略が失敗したかどうかを返す
func (s StrategyResult) Failed() bool {
	return s.Error != ""
}

// Result はベンチマーク実行結果
type Result struct {
	RunName   string        `json:"run_name"`
	Input     string        `json:"input"`
	Workers   int           `json:"workers"`
	Baseline  string        `json:"baseline,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`

	Strategies []StrategyResult `json:"strategies"`

	// pool 戦略のジョブ統計
	PoolMetrics *metrics.Snapshot `json:"pool_metrics,omitempty"`
	Injected    *chaos.Stats      `json:"injected,omitempty"`
}

// Strategy は名前で戦略の結果を返す
func (r *Result) Strategy(name string) (StrategyResult, bool) {
	for _, s := range r.Strategies {
		if s.Strategy == name {
			return s, true
		}
	}
	return StrategyResult{}, false
}

// Engine はベンチマーク実行エンジン
type Engine struct {
	config   Config
	eventBus *events.Bus

	mu       sync.RWMutex
	running  bool
	current  string
	metrics  *metrics.Metrics
	injector *chaos.Injector
}

// New は新しい Engine を作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// SetEventBus はイベントバスを設定する
// 実行中に差し替えた場合は以降のイベントから新しいバスに発行される
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventBus = bus
}

// publishEvent はイベントを発行する
// プールのワーカーからも呼ばれる
func (e *Engine) publishEvent(event events.Event) {
	e.mu.RLock()
	bus := e.eventBus
	e.mu.RUnlock()

	if bus != nil {
		bus.Publish(event)
	}
}

// Config は設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// Run は設定された戦略を順に実行する
// 個々の戦略の失敗は結果に記録して次へ進む。全戦略が失敗した場合と
// ctx がキャンセルされた場合はエラーを返す
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bench config: %w", err)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.metrics = metrics.New()
	e.injector = nil
	if e.config.Chaos.Enabled() {
		e.injector = chaos.New(e.config.Chaos)
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.current = ""
		e.mu.Unlock()
	}()

	log.Info("=== Run '%s' started ===", e.config.Name)
	log.Info("Input: %s, workers: %d, strategies: %s",
		e.config.Input, e.config.Workers, strings.Join(e.config.Strategies, ","))
	e.publishEvent(events.NewRunStartEvent(e.config.Name))

	result := &Result{
		RunName:   e.config.Name,
		Input:     e.config.Input,
		Workers:   e.config.Workers,
		Baseline:  e.config.Baseline,
		StartTime: time.Now(),
	}

	var failures []error
	for _, name := range e.config.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled before %s: %w", name, err)
		}

		sr, err := e.runStrategy(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("run canceled during %s: %w", name, err)
			}
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
		}
		result.Strategies = append(result.Strategies, sr)
	}

	if len(failures) == len(e.config.Strategies) {
		return nil, fmt.Errorf("every strategy failed: %w", errors.Join(failures...))
	}

	e.collectResults(result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	for _, s := range result.Strategies {
		if !s.Failed() {
			e.publishEvent(events.NewStrategyCompleteEvent(s.Strategy, s.Lines, s.Elapsed, s.Speedup))
		}
	}
	e.publishEvent(events.NewRunCompleteEvent(e.config.Name, result.Duration))
	log.Info("=== Run '%s' completed in %v ===", e.config.Name, result.Duration.Round(time.Millisecond))

	return result, nil
}

// runStrategy は1つの戦略を実行する
func (e *Engine) runStrategy(ctx context.Context, name string) (StrategyResult, error) {
	e.mu.Lock()
	e.current = name
	spec := runSpec{
		input:      e.config.Input,
		output:     e.config.OutputPath(name),
		workers:    e.config.Workers,
		chunks:     e.config.Chunks,
		bufferSize: e.config.BufferSize,
		injector:   e.injector,
		metrics:    e.metrics,
		onPanic:    e.onPanic,
	}
	e.mu.Unlock()

	log.Info("Strategy %s started", name)
	e.publishEvent(events.NewStrategyStartEvent(name, e.config.Workers))

	timing, err := strategies[name](ctx, spec)
	sr := StrategyResult{
		Timing:  timing,
		Elapsed: timing.Elapsed(),
		Output:  spec.output,
	}
	if err != nil {
		sr.Error = err.Error()
		log.Error("Strategy %s failed: %v", name, err)
		e.publishEvent(events.NewStrategyFailedEvent(name, err))
		return sr, err
	}

	log.Info("Strategy %s finished: %d lines in %v",
		name, timing.Lines, sr.Elapsed.Round(time.Microsecond))
	return sr, nil
}

// onPanic はプールのジョブパニックをイベントとして通知する
func (e *Engine) onPanic(perr *worker.JobPanicError) {
	e.publishEvent(events.NewJobPanickedEvent(fmt.Sprintf("worker-%d", perr.WorkerID), perr.Seq, perr.Value))
}

// collectResults は Speedup と pool の統計を結果に反映する
func (e *Engine) collectResults(result *Result) {
	if base, ok := result.Strategy(e.config.Baseline); ok && !base.Failed() {
		for i := range result.Strategies {
			s := &result.Strategies[i]
			if !s.Failed() {
				s.Speedup = Speedup(base.Timing, s.Timing)
			}
		}
	}

	if _, ok := result.Strategy(StrategyPool); ok {
		snap := e.metrics.Snapshot()
		result.PoolMetrics = &snap
		if e.injector != nil {
			stats := e.injector.Stats()
			result.Injected = &stats
		}
	}
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// CurrentStrategy は実行中の戦略名を返す（実行中でなければ空）
func (e *Engine) CurrentStrategy() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Metrics は pool 戦略のジョブメトリクスを返す（未実行なら nil）
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metrics == nil {
		return nil
	}
	snapshot := e.metrics.Snapshot()
	return &snapshot
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, `
================================================================================
                         BENCH REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Input:          %s
  Workers:        %d
  Start Time:     %s
  End Time:       %s
  Duration:       %v

STRATEGIES
----------
`,
		r.RunName,
		r.Input,
		r.Workers,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
	)

	t := tabby.NewCustom(tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0))
	t.AddHeader("STRATEGY", "LINES", "RECORDS", "OUTPUT", "ELAPSED", "SPEEDUP")
	for _, s := range r.Strategies {
		if s.Failed() {
			t.AddLine(s.Strategy, "-", "-", "-", "-", "failed: "+s.Error)
			continue
		}
		speedup := "-"
		if s.Speedup > 0 {
			speedup = fmt.Sprintf("%.2fx", s.Speedup)
		}
		t.AddLine(
			s.Strategy,
			humanize.Comma(int64(s.Lines)),
			humanize.Comma(int64(s.Records)),
			humanize.Bytes(s.Bytes),
			s.Elapsed.Round(time.Microsecond),
			speedup,
		)
	}
	t.Print()

	if r.Baseline != "" {
		fmt.Fprintf(&b, "\n  Speedup is relative to %q (>1 is faster).\n", r.Baseline)
	}

	if m := r.PoolMetrics; m != nil {
		fmt.Fprintf(&b, `
POOL JOBS
---------
  Total Jobs:     %s
  Completed:      %s
  Panicked:       %s
  Avg Latency:    %v
  P99 Latency:    %v
`,
			humanize.Comma(int64(m.TotalJobs)),
			humanize.Comma(int64(m.CompletedJobs)),
			humanize.Comma(int64(m.PanickedJobs)),
			m.AverageLatency.Round(time.Microsecond),
			m.P99Latency.Round(time.Microsecond),
		)
	}

	if inj := r.Injected; inj != nil {
		fmt.Fprintf(&b, `
INJECTED FAULTS
---------------
  Panics:         %s
  Delays:         %s
`,
			humanize.Comma(int64(inj.Panics)),
			humanize.Comma(int64(inj.Delays)),
		)
	}

	b.WriteString("\n================================================================================")
	return b.String()
}
