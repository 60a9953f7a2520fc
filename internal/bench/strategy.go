package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hashpool/internal/chaos"
	"hashpool/internal/digest"
	"hashpool/internal/metrics"
	"hashpool/internal/sink"
	"hashpool/internal/worker"
)

// 戦略名
const (
	StrategySingle   = "single"
	StrategyChunked  = "chunked"
	StrategyPool     = "pool"
	StrategyErrgroup = "errgroup"
)

// runSpec は1回の戦略実行に必要なパラメータ
type runSpec struct {
	input      string
	output     string
	workers    int
	chunks     int
	bufferSize int
	injector   *chaos.Injector
	metrics    *metrics.Metrics
	onPanic    func(*worker.JobPanicError)
}

type strategyFunc func(ctx context.Context, spec runSpec) (Timing, error)

var strategies = map[string]strategyFunc{
	StrategySingle:   runSingle,
	StrategyChunked:  runChunked,
	StrategyPool:     runPool,
	StrategyErrgroup: runErrgroup,
}

// Strategies は利用可能な戦略名を実行順に返す
func Strategies() []string {
	return []string{StrategySingle, StrategyChunked, StrategyPool, StrategyErrgroup}
}

// IsStrategy は name が既知の戦略かどうかを返す
func IsStrategy(name string) bool {
	_, ok := strategies[name]
	return ok
}

// firstError はジョブから最初のエラーだけを保持する
type firstError struct {
	once sync.Once
	err  error
}

func (f *firstError) set(err error) {
	if err == nil {
		return
	}
	f.once.Do(func() { f.err = err })
}

// open は入力ファイルと出力先を開く
func open(spec runSpec) (*os.File, *sink.Sink, error) {
	in, err := os.Open(spec.input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	out, err := sink.Create(spec.output, spec.bufferSize)
	if err != nil {
		_ = in.Close()
		return nil, nil, err
	}
	return in, out, nil
}

// finish は出力をクローズし、計測結果を確定する
func finish(timing *Timing, out *sink.Sink, runErr error) error {
	closeErr := out.Close()
	timing.End = time.Now()
	timing.Records = out.Records()
	timing.Bytes = out.Bytes()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to flush output: %w", closeErr)
	}
	return nil
}

// runSingle は1行ずつ逐次処理する
func runSingle(ctx context.Context, spec runSpec) (Timing, error) {
	in, out, err := open(spec)
	if err != nil {
		return Timing{}, err
	}
	defer in.Close()

	timing := Timing{Strategy: StrategySingle, Start: time.Now()}
	timing.Lines, err = digest.ReadLines(ctx, in, func(line string) error {
		return out.WriteRecord(digest.Record(line))
	})
	return timing, finish(&timing, out, err)
}

// runChunked は全行を連続したチャンクに分け、チャンクごとに
// ゴルーチンで処理してチャンク順に書き出す
func runChunked(ctx context.Context, spec runSpec) (Timing, error) {
	in, out, err := open(spec)
	if err != nil {
		return Timing{}, err
	}
	defer in.Close()

	timing := Timing{Strategy: StrategyChunked, Start: time.Now()}

	lines, err := digest.CollectLines(ctx, in)
	if err != nil {
		return timing, finish(&timing, out, err)
	}
	timing.Lines = len(lines)

	chunks := splitChunks(lines, spec.chunks)
	results := make([][]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			records := make([]string, 0, len(chunk))
			for _, line := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				records = append(records, digest.Record(line))
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return timing, finish(&timing, out, err)
	}

	for _, records := range results {
		if err := out.WriteRecords(records); err != nil {
			return timing, finish(&timing, out, err)
		}
	}
	return timing, finish(&timing, out, nil)
}

// splitChunks は lines をほぼ均等な n 個の連続した区間に分ける
func splitChunks(lines []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	if n > len(lines) {
		n = len(lines)
	}
	if n == 0 {
		return nil
	}

	chunks := make([][]string, 0, n)
	size, rem := len(lines)/n, len(lines)%n
	start := 0
	for i := range n {
		end := start + size
		if i < rem {
			end++
		}
		chunks = append(chunks, lines[start:end])
		start = end
	}
	return chunks
}

// runPool は1行につき1ジョブをワーカープールに投入する
// 計測には投入とドレイン（Shutdown）の両方を含む
func runPool(ctx context.Context, spec runSpec) (Timing, error) {
	in, out, err := open(spec)
	if err != nil {
		return Timing{}, err
	}
	defer in.Close()

	// スループットのウィンドウを pool の開始に合わせる
	if spec.metrics != nil {
		spec.metrics.Reset()
	}

	timing := Timing{Strategy: StrategyPool, Start: time.Now()}

	pool, err := worker.NewPoolWithConfig(worker.PoolConfig{
		NumWorkers: spec.workers,
		Metrics:    spec.metrics,
		OnPanic:    spec.onPanic,
	})
	if err != nil {
		return timing, finish(&timing, out, err)
	}

	var writeErr firstError
	timing.Lines, err = digest.ReadLines(ctx, in, func(line string) error {
		job := func() {
			writeErr.set(out.WriteRecord(digest.Record(line)))
		}
		if spec.injector != nil {
			job = spec.injector.Wrap(job)
		}
		return pool.Execute(job)
	})

	// 読み込みが失敗しても投入済みのジョブは全て完了させる
	shutdownErr := pool.Shutdown()
	timing.Panicked = pool.Metrics().PanickedJobs()

	return timing, finish(&timing, out, errors.Join(err, shutdownErr, writeErr.err))
}

// runErrgroup は errgroup の同時実行数制限を使って1行ずつ処理する
func runErrgroup(ctx context.Context, spec runSpec) (Timing, error) {
	in, out, err := open(spec)
	if err != nil {
		return Timing{}, err
	}
	defer in.Close()

	timing := Timing{Strategy: StrategyErrgroup, Start: time.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spec.workers)

	timing.Lines, err = digest.ReadLines(gctx, in, func(line string) error {
		g.Go(func() error {
			return out.WriteRecord(digest.Record(line))
		})
		return nil
	})
	waitErr := g.Wait()

	// 書き込みエラーで gctx がキャンセルされた場合は元のエラーを優先する
	if waitErr != nil {
		err = waitErr
	}
	return timing, finish(&timing, out, err)
}
