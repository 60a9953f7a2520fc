package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"hashpool/internal/bench"
	"hashpool/internal/config"
	"hashpool/internal/logger"
)

func TestBuildSettingsDefault(t *testing.T) {
	s, err := buildSettings(options{input: "words.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.bench.Name != "full" {
		t.Errorf("expected full preset by default, got %s", s.bench.Name)
	}
	if s.bench.Input != "words.txt" {
		t.Errorf("expected input override, got %s", s.bench.Input)
	}
	if s.addr != config.DefaultServerAddr {
		t.Errorf("expected default addr, got %s", s.addr)
	}
	if s.level != logger.LevelInfo {
		t.Errorf("expected info level, got %v", s.level)
	}
}

func TestBuildSettingsPreset(t *testing.T) {
	s, err := buildSettings(options{presetName: "pool", workers: 3, chunks: 9, outputDir: "results"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.bench.Name != "pool" {
		t.Errorf("expected pool preset, got %s", s.bench.Name)
	}
	if s.bench.Workers != 3 || s.bench.Chunks != 9 || s.bench.OutputDir != "results" {
		t.Errorf("flags not applied: %+v", s.bench)
	}
}

func TestBuildSettingsUnknownPreset(t *testing.T) {
	if _, err := buildSettings(options{presetName: "nonexistent"}); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestBuildSettingsStrategies(t *testing.T) {
	tests := []struct {
		name       string
		strategies string
		baseline   string
		expected   []string
		wantBase   string
	}{
		{"keeps baseline", "single,pool", "", []string{"single", "pool"}, "single"},
		{"drops missing baseline", "pool,errgroup", "", []string{"pool", "errgroup"}, ""},
		{"explicit baseline", "pool,errgroup", "pool", []string{"pool", "errgroup"}, "pool"},
		{"baseline disabled", "", "none", bench.Strategies(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := buildSettings(options{strategies: tt.strategies, baseline: tt.baseline})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(s.bench.Strategies, tt.expected) {
				t.Errorf("expected strategies %v, got %v", tt.expected, s.bench.Strategies)
			}
			if s.bench.Baseline != tt.wantBase {
				t.Errorf("expected baseline %q, got %q", tt.wantBase, s.bench.Baseline)
			}
		})
	}

	if _, err := buildSettings(options{strategies: "rayon"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestBuildSettingsConfigFile(t *testing.T) {
	content := `
log_level: debug
log_file: hashpool.log
bench:
  preset: quick
  input: from-file.txt
  workers: 2
server:
  addr: ":9000"
  metrics_interval: 250ms
`
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create config: %v", err)
	}

	s, err := buildSettings(options{configFile: path, workers: 6, logLevel: "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.bench.Name != "quick" {
		t.Errorf("expected quick preset from file, got %s", s.bench.Name)
	}
	if s.bench.Input != "from-file.txt" {
		t.Errorf("expected input from file, got %s", s.bench.Input)
	}
	// フラグがファイルより優先される
	if s.bench.Workers != 6 {
		t.Errorf("expected workers 6, got %d", s.bench.Workers)
	}
	if s.level != logger.LevelWarn {
		t.Errorf("expected warn level, got %v", s.level)
	}
	if s.addr != ":9000" {
		t.Errorf("expected addr from file, got %s", s.addr)
	}
	if s.logFile != "hashpool.log" {
		t.Errorf("expected log file from file, got %s", s.logFile)
	}
}

func TestBuildSettingsInvalidLogLevel(t *testing.T) {
	if _, err := buildSettings(options{logLevel: "verbose"}); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestSetupLogOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashpool.log")
	if err := os.WriteFile(path, []byte("previous\n"), 0644); err != nil {
		t.Fatalf("failed to create log file: %v", err)
	}

	closeLog, err := setupLogOutput(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Warn("main", "written to file")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	// 既存の内容に追記される
	if !strings.HasPrefix(string(data), "previous\n") {
		t.Errorf("expected existing content to be kept, got %q", data)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("expected log line in file, got %q", data)
	}
}

func TestSetupLogOutputDefault(t *testing.T) {
	closeLog, err := setupLogOutput("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeLog()

	if _, err := setupLogOutput(filepath.Join(t.TempDir(), "missing", "hashpool.log")); err == nil {
		t.Error("expected error for missing directory")
	}
}
