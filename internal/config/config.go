package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"hashpool/internal/bench"
	"hashpool/internal/logger"
)

// デフォルト値
const (
	DefaultServerAddr      = ":8080"
	DefaultMetricsInterval = time.Second
	DefaultDebounce        = 100 * time.Millisecond
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	LogLevel string       `yaml:"log_level" json:"log_level" toml:"log_level"`
	LogFile  string       `yaml:"log_file" json:"log_file" toml:"log_file"`
	Bench    BenchConfig  `yaml:"bench" json:"bench" toml:"bench"`
	Server   ServerConfig `yaml:"server" json:"server" toml:"server"`
	Watch    WatchConfig  `yaml:"watch" json:"watch" toml:"watch"`
}

// BenchConfig はベンチマーク設定
type BenchConfig struct {
	Preset      string   `yaml:"preset" json:"preset" toml:"preset"`
	Name        string   `yaml:"name" json:"name" toml:"name"`
	Description string   `yaml:"description" json:"description" toml:"description"`
	Input       string   `yaml:"input" json:"input" toml:"input"`
	OutputDir   string   `yaml:"output_dir" json:"output_dir" toml:"output_dir"`
	Workers     int      `yaml:"workers" json:"workers" toml:"workers"`
	Chunks      int      `yaml:"chunks" json:"chunks" toml:"chunks"`
	BufferSize  int      `yaml:"buffer_size" json:"buffer_size" toml:"buffer_size"`
	Strategies  []string `yaml:"strategies" json:"strategies" toml:"strategies"`
	Baseline    string   `yaml:"baseline" json:"baseline" toml:"baseline"`

	Chaos ChaosConfig `yaml:"chaos" json:"chaos" toml:"chaos"`
}

// ChaosConfig は障害注入の設定
type ChaosConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled" toml:"enabled"`
	PanicRate float64 `yaml:"panic_rate" json:"panic_rate" toml:"panic_rate"`
	DelayRate float64 `yaml:"delay_rate" json:"delay_rate" toml:"delay_rate"`
	Delay     string  `yaml:"delay" json:"delay" toml:"delay"`
	Seed      int64   `yaml:"seed" json:"seed" toml:"seed"`
}

// ServerConfig はAPIサーバーの設定
type ServerConfig struct {
	Addr            string `yaml:"addr" json:"addr" toml:"addr"`
	MetricsInterval string `yaml:"metrics_interval" json:"metrics_interval" toml:"metrics_interval"`
}

// WatchConfig は入力ファイル監視の設定
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce" toml:"debounce"`
}

// BaselineNone は基準戦略を使わないことを表す
const BaselineNone = "none"

// LoadFile は設定ファイルを読み込む
// 形式は拡張子で判定する（.yaml/.yml, .json, .toml）
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToBenchConfig はFileConfigをbench.Configに変換する
// preset が指定されていればそれを、なければデフォルト設定を土台にする
func (f *FileConfig) ToBenchConfig() (bench.Config, error) {
	bc := f.Bench

	config := bench.DefaultConfig()
	if bc.Preset != "" {
		preset, ok := bench.GetPreset(bc.Preset)
		if !ok {
			return config, fmt.Errorf("unknown preset: %s (available: %v)", bc.Preset, bench.ListPresets())
		}
		config = preset
	}

	if bc.Name != "" {
		config.Name = bc.Name
	}
	if bc.Description != "" {
		config.Description = bc.Description
	}
	if bc.Input != "" {
		config.Input = bc.Input
	}
	if bc.OutputDir != "" {
		config.OutputDir = bc.OutputDir
	}
	if bc.Workers > 0 {
		config.Workers = bc.Workers
	}
	if bc.Chunks > 0 {
		config.Chunks = bc.Chunks
	}
	if bc.BufferSize > 0 {
		config.BufferSize = bc.BufferSize
	}
	if len(bc.Strategies) > 0 {
		strategies, err := ParseStrategies(bc.Strategies)
		if err != nil {
			return config, err
		}
		config.Strategies = strategies
		// 実行しない戦略を基準にはできない
		if !slices.Contains(strategies, config.Baseline) {
			config.Baseline = ""
		}
	}
	switch bc.Baseline {
	case "":
	case BaselineNone:
		config.Baseline = ""
	default:
		config.Baseline = strings.ToLower(bc.Baseline)
	}

	// Chaos設定
	if bc.Chaos.Enabled {
		config.Chaos.PanicRate = bc.Chaos.PanicRate
		config.Chaos.DelayRate = bc.Chaos.DelayRate
		if bc.Chaos.Delay != "" {
			d, err := time.ParseDuration(bc.Chaos.Delay)
			if err != nil {
				return config, fmt.Errorf("invalid chaos delay: %w", err)
			}
			config.Chaos.Delay = d
		}
		if bc.Chaos.Seed != 0 {
			config.Chaos.Seed = bc.Chaos.Seed
		}
	}

	return config, nil
}

// ParseStrategies は戦略名のリストを正規化して検証する
// カンマ区切りの要素も展開する
func ParseStrategies(names []string) ([]string, error) {
	var strategies []string

	for _, name := range names {
		for _, s := range strings.Split(name, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if !bench.IsStrategy(s) {
				return nil, fmt.Errorf("unknown strategy: %s", s)
			}
			strategies = append(strategies, s)
		}
	}

	return strategies, nil
}

// Level はログレベルを返す（未指定なら INFO）
func (f *FileConfig) Level() (logger.Level, error) {
	return logger.ParseLevel(f.LogLevel)
}

// ServerAddr はAPIサーバーの待ち受けアドレスを返す
func (f *FileConfig) ServerAddr() string {
	if f.Server.Addr == "" {
		return DefaultServerAddr
	}
	return f.Server.Addr
}

// MetricsInterval はWebSocketへのメトリクス送信間隔を返す
func (f *FileConfig) MetricsInterval() (time.Duration, error) {
	return parseDurationOr(f.Server.MetricsInterval, DefaultMetricsInterval, "server.metrics_interval")
}

// Debounce は入力ファイル監視のデバウンス時間を返す
func (f *FileConfig) Debounce() (time.Duration, error) {
	return parseDurationOr(f.Watch.Debounce, DefaultDebounce, "watch.debounce")
}

func parseDurationOr(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	bc := f.Bench

	if _, err := f.Level(); err != nil {
		return err
	}

	if bc.Workers < 0 {
		return fmt.Errorf("bench.workers must be non-negative")
	}

	if bc.Chunks < 0 {
		return fmt.Errorf("bench.chunks must be non-negative")
	}

	if bc.BufferSize < 0 {
		return fmt.Errorf("bench.buffer_size must be non-negative")
	}

	if _, err := ParseStrategies(bc.Strategies); err != nil {
		return err
	}

	if bc.Baseline != "" && bc.Baseline != BaselineNone && !bench.IsStrategy(strings.ToLower(bc.Baseline)) {
		return fmt.Errorf("unknown baseline: %s", bc.Baseline)
	}

	if bc.Chaos.PanicRate < 0 || bc.Chaos.PanicRate > 1 {
		return fmt.Errorf("bench.chaos.panic_rate must be between 0 and 1")
	}

	if bc.Chaos.DelayRate < 0 || bc.Chaos.DelayRate > 1 {
		return fmt.Errorf("bench.chaos.delay_rate must be between 0 and 1")
	}

	if _, err := f.MetricsInterval(); err != nil {
		return err
	}

	if _, err := f.Debounce(); err != nil {
		return err
	}

	return nil
}
