package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hashpool/internal/events"
)

func testConfig(t *testing.T, lines int) Config {
	t.Helper()

	input, _ := writeInput(t, lines)
	config := FullPreset()
	config.Input = input
	config.OutputDir = t.TempDir()
	config.Workers = 4
	config.Chunks = 3
	return config
}

// drain はバッファ済みのイベントを全て取り出す
func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Name != "default" {
		t.Errorf("expected name 'default', got '%s'", config.Name)
	}
	if config.Workers < 1 {
		t.Errorf("expected at least 1 worker, got %d", config.Workers)
	}
	if len(config.Strategies) != len(Strategies()) {
		t.Errorf("expected all strategies, got %v", config.Strategies)
	}
	if config.Baseline != StrategySingle {
		t.Errorf("expected baseline single, got %s", config.Baseline)
	}
	if config.Chaos.Enabled() {
		t.Error("expected chaos to be disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.Input = "words.txt"
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no input", func(c *Config) { c.Input = "" }, "input"},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, "output directory"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"zero chunks", func(c *Config) { c.Chunks = 0 }, "chunks"},
		{"no strategies", func(c *Config) { c.Strategies = nil }, "at least one strategy"},
		{"unknown strategy", func(c *Config) { c.Strategies = []string{"rayon"} }, "unknown strategy"},
		{"duplicate strategy", func(c *Config) { c.Strategies = []string{"pool", "pool"} }, "duplicate"},
		{"baseline not run", func(c *Config) { c.Strategies = []string{"pool"} }, "baseline"},
		{"no baseline", func(c *Config) { c.Strategies = []string{"pool"}; c.Baseline = "" }, ""},
		{"bad chaos", func(c *Config) { c.Chaos.PanicRate = 2 }, "chaos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	config := DefaultConfig()
	config.OutputDir = "results"

	if got := config.OutputPath(StrategyPool); got != filepath.Join("results", "pool.txt") {
		t.Errorf("unexpected output path: %s", got)
	}
}

func TestNewEngine(t *testing.T) {
	engine := New(DefaultConfig())

	if engine == nil {
		t.Fatal("expected non-nil engine")
	}
	if engine.IsRunning() {
		t.Error("expected engine to not be running initially")
	}
	if engine.CurrentStrategy() != "" {
		t.Error("expected no current strategy")
	}
	if engine.Metrics() != nil {
		t.Error("expected no metrics before the first run")
	}
}

func TestEngineRunFull(t *testing.T) {
	config := testConfig(t, 500)
	engine := New(config)

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("failed to run: %v", err)
	}

	if result.RunName != "full" {
		t.Errorf("expected run name 'full', got '%s'", result.RunName)
	}
	if len(result.Strategies) != len(Strategies()) {
		t.Fatalf("expected %d strategy results, got %d", len(Strategies()), len(result.Strategies))
	}

	for i, s := range result.Strategies {
		if s.Strategy != config.Strategies[i] {
			t.Errorf("expected strategy %s at %d, got %s", config.Strategies[i], i, s.Strategy)
		}
		if s.Failed() {
			t.Errorf("%s failed: %s", s.Strategy, s.Error)
		}
		if s.Lines != 500 || s.Records != 500 {
			t.Errorf("%s: expected 500 lines and records, got %d/%d", s.Strategy, s.Lines, s.Records)
		}
		if s.Speedup <= 0 {
			t.Errorf("%s: expected positive speedup, got %f", s.Strategy, s.Speedup)
		}
		if s.Elapsed < MinElapsed {
			t.Errorf("%s: elapsed below minimum", s.Strategy)
		}
		if _, err := os.Stat(s.Output); err != nil {
			t.Errorf("%s: output missing: %v", s.Strategy, err)
		}
	}

	base, ok := result.Strategy(StrategySingle)
	if !ok {
		t.Fatal("expected baseline result")
	}
	if base.Speedup != 1 {
		t.Errorf("expected baseline speedup 1, got %f", base.Speedup)
	}

	if result.PoolMetrics == nil {
		t.Fatal("expected pool metrics")
	}
	if result.PoolMetrics.CompletedJobs != 500 {
		t.Errorf("expected 500 completed pool jobs, got %d", result.PoolMetrics.CompletedJobs)
	}
	if result.Injected != nil {
		t.Error("expected no injected faults")
	}
	if engine.IsRunning() {
		t.Error("expected engine to stop after run")
	}
}

func TestEngineRunPublishesEvents(t *testing.T) {
	config := testConfig(t, 50)
	config.Strategies = []string{StrategySingle, StrategyPool}

	bus := events.NewBusWithBuffer(1000)
	defer bus.Close()
	ch := bus.Subscribe()

	engine := New(config)
	engine.SetEventBus(bus)

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("failed to run: %v", err)
	}

	counts := make(map[events.EventType]int)
	received := drain(ch)
	for _, e := range received {
		counts[e.Type]++
	}

	if counts[events.EventRunStart] != 1 {
		t.Errorf("expected 1 run_start, got %d", counts[events.EventRunStart])
	}
	if counts[events.EventStrategyStart] != 2 {
		t.Errorf("expected 2 strategy_start, got %d", counts[events.EventStrategyStart])
	}
	if counts[events.EventStrategyComplete] != 2 {
		t.Errorf("expected 2 strategy_complete, got %d", counts[events.EventStrategyComplete])
	}
	if counts[events.EventRunComplete] != 1 {
		t.Errorf("expected 1 run_complete, got %d", counts[events.EventRunComplete])
	}
	if received[0].Type != events.EventRunStart {
		t.Errorf("expected first event run_start, got %s", received[0].Type)
	}
	if last := received[len(received)-1]; last.Type != events.EventRunComplete {
		t.Errorf("expected last event run_complete, got %s", last.Type)
	}
}

func TestEngineSetEventBusDuringRun(t *testing.T) {
	config := testConfig(t, 300)
	config.Strategies = []string{StrategySingle, StrategyPool}
	config.Chaos.PanicRate = 0.1

	first := events.NewBusWithBuffer(1000)
	second := events.NewBusWithBuffer(1000)
	defer first.Close()
	defer second.Close()
	chFirst := first.Subscribe()
	chSecond := second.Subscribe()

	engine := New(config)
	engine.SetEventBus(first)

	// ワーカーがイベントを発行している間にバスを差し替える
	stop := make(chan struct{})
	swapped := make(chan struct{})
	go func() {
		defer close(swapped)
		buses := []*events.Bus{first, second}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				engine.SetEventBus(buses[i%2])
			}
		}
	}()

	_, err := engine.Run(context.Background())
	close(stop)
	<-swapped
	if err != nil {
		t.Fatalf("failed to run: %v", err)
	}

	completes := 0
	for _, e := range append(drain(chFirst), drain(chSecond)...) {
		if e.Type == events.EventRunComplete {
			completes++
		}
	}
	if completes != 1 {
		t.Errorf("expected exactly 1 run_complete across both buses, got %d", completes)
	}
}

func TestEngineRunWithChaos(t *testing.T) {
	config := ChaosPreset()
	input, _ := writeInput(t, 300)
	config.Input = input
	config.OutputDir = t.TempDir()
	config.Workers = 4
	config.Chaos.PanicRate = 0.1
	config.Chaos.Delay = 0

	bus := events.NewBusWithBuffer(1000)
	defer bus.Close()
	ch := bus.Subscribe()

	engine := New(config)
	engine.SetEventBus(bus)

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("failed to run: %v", err)
	}

	if result.Injected == nil || result.Injected.Panics == 0 {
		t.Fatal("expected injected panics")
	}
	panics := result.Injected.Panics

	pool, _ := result.Strategy(StrategyPool)
	if pool.Failed() {
		t.Fatalf("expected pool to survive panics, got %s", pool.Error)
	}
	if pool.Panicked != panics {
		t.Errorf("expected %d panicked jobs, got %d", panics, pool.Panicked)
	}
	if pool.Records != 300-panics {
		t.Errorf("expected %d records, got %d", 300-panics, pool.Records)
	}

	// 逐次処理には障害を注入しない
	single, _ := result.Strategy(StrategySingle)
	if single.Records != 300 {
		t.Errorf("expected 300 single records, got %d", single.Records)
	}

	var panicked uint64
	for _, e := range drain(ch) {
		if e.Type == events.EventJobPanicked {
			panicked++
		}
	}
	if panicked != panics {
		t.Errorf("expected %d job_panicked events, got %d", panics, panicked)
	}
}

func TestEngineRunPartialFailure(t *testing.T) {
	config := testConfig(t, 20)
	config.Strategies = []string{StrategySingle, StrategyPool}

	// pool の出力先をディレクトリにして作成を失敗させる
	if err := os.Mkdir(config.OutputPath(StrategyPool), 0755); err != nil {
		t.Fatal(err)
	}

	bus := events.NewBusWithBuffer(100)
	defer bus.Close()
	ch := bus.Subscribe()

	engine := New(config)
	engine.SetEventBus(bus)

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("expected partial failure to still produce a result: %v", err)
	}

	pool, ok := result.Strategy(StrategyPool)
	if !ok || !pool.Failed() {
		t.Fatal("expected pool to be recorded as failed")
	}
	if pool.Speedup != 0 {
		t.Error("expected no speedup for a failed strategy")
	}
	if single, _ := result.Strategy(StrategySingle); single.Failed() {
		t.Errorf("expected single to succeed, got %s", single.Error)
	}

	failed := 0
	for _, e := range drain(ch) {
		if e.Type == events.EventStrategyFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 strategy_failed event, got %d", failed)
	}

	if report := result.Report(); !strings.Contains(report, "failed:") {
		t.Error("expected report to mark the failed strategy")
	}
}

func TestEngineRunAllFail(t *testing.T) {
	config := testConfig(t, 10)
	config.Input = filepath.Join(t.TempDir(), "missing.txt")

	if _, err := New(config).Run(context.Background()); err == nil {
		t.Fatal("expected error when every strategy fails")
	}
}

func TestEngineRunInvalidConfig(t *testing.T) {
	config := DefaultConfig()

	if _, err := New(config).Run(context.Background()); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestEngineRunCanceled(t *testing.T) {
	config := testConfig(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(config).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngineRunAlreadyRunning(t *testing.T) {
	config := testConfig(t, 10)
	engine := New(config)

	engine.mu.Lock()
	engine.running = true
	engine.mu.Unlock()

	if _, err := engine.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestEngineRunTwice(t *testing.T) {
	config := testConfig(t, 30)
	config.Strategies = []string{StrategyPool}
	config.Baseline = ""
	engine := New(config)

	for i := range 2 {
		result, err := engine.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		// メトリクスは実行ごとにリセットされる
		if result.PoolMetrics.TotalJobs != 30 {
			t.Errorf("run %d: expected 30 jobs, got %d", i, result.PoolMetrics.TotalJobs)
		}
	}
}

func TestResultReport(t *testing.T) {
	config := testConfig(t, 40)
	result, err := New(config).Run(context.Background())
	if err != nil {
		t.Fatalf("failed to run: %v", err)
	}

	report := result.Report()
	for _, want := range []string{"BENCH REPORT: full", "STRATEGY", "SPEEDUP", "POOL JOBS", "1.00x"} {
		if !strings.Contains(report, want) {
			t.Errorf("expected report to contain %q", want)
		}
	}
	for _, name := range Strategies() {
		if !strings.Contains(report, name) {
			t.Errorf("expected report to contain strategy %s", name)
		}
	}
	if strings.Contains(report, "INJECTED FAULTS") {
		t.Error("expected no fault section without chaos")
	}
}
