package chaos

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hashpool/internal/worker"
)

func TestFaultTypeString(t *testing.T) {
	tests := []struct {
		fault    FaultType
		expected string
	}{
		{FaultNone, "none"},
		{FaultPanic, "panic"},
		{FaultDelay, "delay"},
		{FaultType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.fault.String(); got != tt.expected {
			t.Errorf("FaultType(%d).String() = %s, want %s", tt.fault, got, tt.expected)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		hasError bool
	}{
		{"default", DefaultConfig(), false},
		{"panic only", Config{PanicRate: 0.5}, false},
		{"both", Config{PanicRate: 0.5, DelayRate: 0.5, Delay: time.Millisecond}, false},
		{"negative panic rate", Config{PanicRate: -0.1}, true},
		{"panic rate above one", Config{PanicRate: 1.1}, true},
		{"delay rate above one", Config{DelayRate: 2}, true},
		{"sum above one", Config{PanicRate: 0.6, DelayRate: 0.6}, true},
		{"negative delay", Config{DelayRate: 0.1, Delay: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.hasError && err == nil {
				t.Error("expected validation error")
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfigEnabled(t *testing.T) {
	if DefaultConfig().Enabled() {
		t.Error("expected default config to inject nothing")
	}
	if !(Config{DelayRate: 0.1}).Enabled() {
		t.Error("expected delay config to be enabled")
	}
}

func TestWrapWithoutFaults(t *testing.T) {
	inj := New(DefaultConfig())

	var ran atomic.Int32
	for range 100 {
		inj.Wrap(func() { ran.Add(1) })()
	}

	if ran.Load() != 100 {
		t.Errorf("expected 100 runs, got %d", ran.Load())
	}
	stats := inj.Stats()
	if stats.Wrapped != 100 || stats.Panics != 0 || stats.Delays != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWrapAlwaysPanics(t *testing.T) {
	inj := New(Config{PanicRate: 1, Seed: 7})

	ran := false
	job := inj.Wrap(func() { ran = true })

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInjected) {
			t.Errorf("expected injected panic, got %v", r)
		}
		if ran {
			t.Error("job body should not run when a panic is injected")
		}
	}()
	job()
}

func TestWrapAlwaysDelays(t *testing.T) {
	inj := New(Config{DelayRate: 1, Delay: 10 * time.Millisecond, Seed: 7})

	ran := false
	start := time.Now()
	inj.Wrap(func() { ran = true })()

	if !ran {
		t.Error("expected delayed job to run")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("expected job to be delayed")
	}
	if inj.Stats().ByType["delay"] != 1 {
		t.Errorf("expected 1 delay, got %+v", inj.Stats().ByType)
	}
}

func TestWrapDeterministic(t *testing.T) {
	config := Config{PanicRate: 0.3, DelayRate: 0.2, Seed: 42}

	a := New(config)
	b := New(config)
	for range 500 {
		a.Wrap(func() {})
		b.Wrap(func() {})
	}

	sa, sb := a.Stats(), b.Stats()
	if sa.Panics != sb.Panics || sa.Delays != sb.Delays {
		t.Errorf("expected identical stats for same seed: %+v vs %+v", sa, sb)
	}
	if sa.Panics == 0 || sa.Delays == 0 {
		t.Errorf("expected both fault types over 500 jobs: %+v", sa)
	}
}

func TestInjectedPanicsAreContainedByPool(t *testing.T) {
	inj := New(Config{PanicRate: 0.25, Seed: 3})
	pool, err := worker.NewPool(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ran atomic.Int32
	for range 200 {
		if err := pool.Execute(inj.Wrap(func() { ran.Add(1) })); err != nil {
			t.Fatalf("unexpected execute error: %v", err)
		}
	}
	if err := pool.Shutdown(); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	stats := inj.Stats()
	if uint64(ran.Load())+stats.Panics != 200 {
		t.Errorf("expected ran(%d) + panics(%d) = 200", ran.Load(), stats.Panics)
	}
	if pool.Metrics().PanickedJobs() != stats.Panics {
		t.Errorf("expected pool to count %d panics, got %d", stats.Panics, pool.Metrics().PanickedJobs())
	}
}
