// Package main is the entry point for hashpool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"hashpool/internal/api"
	"hashpool/internal/bench"
	"hashpool/internal/config"
	"hashpool/internal/logger"
	"hashpool/internal/watch"
)

var (
	version = "dev"
)

// options はコマンドラインフラグの値
type options struct {
	configFile string
	presetName string
	input      string
	outputDir  string
	workers    int
	chunks     int
	strategies string
	baseline   string
	logLevel   string
	logFile    string
	addr       string
}

// settings はフラグと設定ファイルを解決した実行設定
type settings struct {
	bench    bench.Config
	level    logger.Level
	logFile  string
	addr     string
	interval time.Duration
	debounce time.Duration
}

func main() {
	// フラグ定義
	var (
		opts        options
		watchMode   = flag.Bool("watch", false, "入力ファイルの変更を監視して再実行")
		serverMode  = flag.Bool("server", false, "APIサーバーモードで起動")
		listPresets = flag.Bool("list-presets", false, "利用可能なプリセットを表示")
		showVersion = flag.Bool("version", false, "バージョンを表示")
	)
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON/TOML)")
	flag.StringVar(&opts.presetName, "preset", "", "プリセット名 ("+strings.Join(bench.ListPresets(), ", ")+")")
	flag.StringVar(&opts.input, "input", "", "入力ファイル (1行1レコード)")
	flag.StringVar(&opts.outputDir, "out", "", "出力ディレクトリ (デフォルト: out)")
	flag.IntVar(&opts.workers, "workers", 0, "ワーカー数 (デフォルト: GOMAXPROCS)")
	flag.IntVar(&opts.chunks, "chunks", 0, "chunked 戦略のチャンク数")
	flag.StringVar(&opts.strategies, "strategies", "", "実行する戦略 (カンマ区切り: "+strings.Join(bench.Strategies(), ",")+")")
	flag.StringVar(&opts.baseline, "baseline", "", "Speedup の基準戦略 (none で無効)")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	flag.StringVar(&opts.logFile, "log-file", "", "ログの出力先ファイル (追記、デフォルト: 標準エラー)")
	flag.StringVar(&opts.addr, "addr", "", "サーバーアドレス (例: :8080, 0.0.0.0:3000)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `hashpool - Fixed-size worker pool and hashing benchmark

Usage:
  hashpool [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # 全戦略を比較
  hashpool --input words.txt

  # プリセットを実行
  hashpool --preset chaos --input words.txt

  # 設定ファイルから実行
  hashpool --config bench.yaml

  # 戦略とワーカー数を指定
  hashpool --input words.txt --strategies single,pool --workers 8

  # 入力ファイルの変更を監視
  hashpool --input words.txt --watch

  # APIサーバーモードで起動
  hashpool --server --input words.txt --addr :3000
`)
	}

	flag.Parse()

	// バージョン表示
	if *showVersion {
		fmt.Printf("hashpool version %s\n", version)
		return
	}

	// プリセット一覧表示
	if *listPresets {
		printPresets()
		return
	}

	s, err := buildSettings(opts)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(s.level)
	closeLog, err := setupLogOutput(s.logFile)
	if err != nil {
		logger.Error("", "ログファイルエラー: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *serverMode:
		err = runServer(ctx, s)
	case *watchMode:
		err = runWatch(ctx, s)
	default:
		err = runBench(ctx, s.bench)
	}
	if err != nil {
		logger.Error("", "実行エラー: %v", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

// setupLogOutput はログの出力先を path に切り替える
// 戻り値の関数は出力先を標準エラーに戻してファイルを閉じる
func setupLogOutput(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

// buildSettings は実行設定を構築する
// 優先順位: フラグ > 設定ファイル > プリセット > デフォルト
func buildSettings(opts options) (settings, error) {
	s := settings{
		addr:     config.DefaultServerAddr,
		interval: config.DefaultMetricsInterval,
		debounce: config.DefaultDebounce,
		level:    logger.LevelInfo,
	}

	// 1. 設定ファイルから読み込み
	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return s, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		if opts.presetName != "" && fileConfig.Bench.Preset == "" {
			fileConfig.Bench.Preset = opts.presetName
		}
		if err := fileConfig.Validate(); err != nil {
			return s, fmt.Errorf("設定検証エラー: %w", err)
		}
		if s.bench, err = fileConfig.ToBenchConfig(); err != nil {
			return s, fmt.Errorf("設定変換エラー: %w", err)
		}
		// Validate 済みなのでエラーにはならない
		s.level, _ = fileConfig.Level()
		s.interval, _ = fileConfig.MetricsInterval()
		s.debounce, _ = fileConfig.Debounce()
		s.addr = fileConfig.ServerAddr()
		s.logFile = fileConfig.LogFile
	} else if opts.presetName != "" {
		// 2. プリセットから読み込み
		preset, ok := bench.GetPreset(opts.presetName)
		if !ok {
			return s, fmt.Errorf("不明なプリセット: %s (利用可能: %v)", opts.presetName, bench.ListPresets())
		}
		s.bench = preset
	} else {
		// 3. デフォルト（全戦略）
		s.bench = bench.FullPreset()
	}

	// フラグでオーバーライド
	if opts.input != "" {
		s.bench.Input = opts.input
	}
	if opts.outputDir != "" {
		s.bench.OutputDir = opts.outputDir
	}
	if opts.workers > 0 {
		s.bench.Workers = opts.workers
	}
	if opts.chunks > 0 {
		s.bench.Chunks = opts.chunks
	}
	if opts.strategies != "" {
		strategies, err := config.ParseStrategies([]string{opts.strategies})
		if err != nil {
			return s, err
		}
		s.bench.Strategies = strategies
		if !slices.Contains(strategies, s.bench.Baseline) {
			s.bench.Baseline = ""
		}
	}
	switch opts.baseline {
	case "":
	case config.BaselineNone:
		s.bench.Baseline = ""
	default:
		s.bench.Baseline = opts.baseline
	}
	if opts.logLevel != "" {
		level, err := logger.ParseLevel(opts.logLevel)
		if err != nil {
			return s, err
		}
		s.level = level
	}
	if opts.logFile != "" {
		s.logFile = opts.logFile
	}
	if opts.addr != "" {
		s.addr = opts.addr
	}

	return s, nil
}

// runBench はベンチマークを1回実行してレポートを表示する
func runBench(ctx context.Context, cfg bench.Config) error {
	fmt.Println("hashpool - Fixed-size worker pool benchmark")
	fmt.Println("====================================================")
	fmt.Printf("Run: %s\n", cfg.Name)
	fmt.Printf("Input: %s\n", cfg.Input)
	fmt.Printf("Workers: %d, Chunks: %d\n", cfg.Workers, cfg.Chunks)
	fmt.Printf("Strategies: %s\n", strings.Join(cfg.Strategies, ", "))
	if cfg.Chaos.Enabled() {
		fmt.Printf("Chaos: panic %.2f%%, delay %.2f%% (%v)\n",
			cfg.Chaos.PanicRate*100, cfg.Chaos.DelayRate*100, cfg.Chaos.Delay)
	}
	fmt.Println("====================================================")
	fmt.Println()

	engine := bench.New(cfg)
	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	// レポート出力
	fmt.Println(result.Report())

	return nil
}

// runWatch は初回実行の後、入力ファイルが変わるたびに再実行する
func runWatch(ctx context.Context, s settings) error {
	if err := s.bench.Validate(); err != nil {
		return err
	}

	rerun := func(ctx context.Context) error {
		return runBench(ctx, s.bench)
	}

	w, err := watch.New(s.bench.Input, s.debounce, rerun)
	if err != nil {
		return err
	}

	// 初回の失敗は監視を続けるためログに留める
	if err := rerun(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("", "初回実行エラー: %v", err)
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", w.Path())
	err = w.Run(ctx)
	fmt.Printf("Stopped watching after %d reruns\n", w.Runs())
	return err
}

// printPresets は利用可能なプリセットを表示する
func printPresets() {
	fmt.Println("利用可能なプリセット:")
	fmt.Println()

	for _, name := range bench.ListPresets() {
		p, _ := bench.GetPreset(name)
		fmt.Printf("  %-8s %-34s [%s]\n", name, p.Description, strings.Join(p.Strategies, ","))
	}

	fmt.Println()
	fmt.Println("使用例: hashpool --preset quick --input words.txt")
}

// runServer はAPIサーバーを起動する
func runServer(ctx context.Context, s settings) error {
	fmt.Println("hashpool - API Server")
	fmt.Println("========================")
	fmt.Printf("Starting server on http://%s\n", s.addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	server := api.NewServer(s.addr, s.bench)
	server.SetMetricsInterval(s.interval)
	return server.Start(ctx)
}
