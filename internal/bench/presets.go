package bench

import (
	"time"

	"hashpool/internal/chaos"
)

// QuickPreset は逐次処理とプールだけを比較する
func QuickPreset() Config {
	cfg := DefaultConfig()
	cfg.Name = "quick"
	cfg.Description = "Sequential baseline against the worker pool"
	cfg.Strategies = []string{StrategySingle, StrategyPool}
	return cfg
}

// FullPreset は全戦略を比較する
func FullPreset() Config {
	cfg := DefaultConfig()
	cfg.Name = "full"
	cfg.Description = "Every strategy against the sequential baseline"
	return cfg
}

// PoolPreset はプールのみを実行する
func PoolPreset() Config {
	cfg := DefaultConfig()
	cfg.Name = "pool"
	cfg.Description = "Worker pool only"
	cfg.Strategies = []string{StrategyPool}
	cfg.Baseline = ""
	return cfg
}

// ChaosPreset はプールに障害を注入して逐次処理と比較する
// 出力件数はパニックしたジョブの分だけ少なくなる
func ChaosPreset() Config {
	cfg := DefaultConfig()
	cfg.Name = "chaos"
	cfg.Description = "Worker pool with injected job panics and delays"
	cfg.Strategies = []string{StrategySingle, StrategyPool}
	cfg.Chaos = chaos.Config{
		PanicRate: 0.01,
		DelayRate: 0.01,
		Delay:     time.Millisecond,
		Seed:      1,
	}
	return cfg
}

var presets = map[string]func() Config{
	"quick": QuickPreset,
	"full":  FullPreset,
	"pool":  PoolPreset,
	"chaos": ChaosPreset,
}

// GetPreset は名前からプリセットを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"quick", "full", "pool", "chaos"}
}
