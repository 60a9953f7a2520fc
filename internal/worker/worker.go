package worker

import (
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"hashpool/internal/logger"
	"hashpool/internal/metrics"
)

// Job はワーカーが実行するジョブを表す
type Job func()

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers int                  // ワーカー数（1以上）
	Metrics    *metrics.Metrics     // nil の場合は新規作成
	OnPanic    func(*JobPanicError) // ジョブがパニックした際に呼ばれる（任意、パニックしても回収される）
}

// DefaultPoolConfig はデフォルト設定を返す
// ワーカー数は GOMAXPROCS に合わせる
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers: runtime.GOMAXPROCS(0),
	}
}

// Pool は固定数のワーカーゴルーチンを管理する
type Pool struct {
	numWorkers int
	queue      *Queue
	metrics    *metrics.Metrics
	onPanic    func(*JobPanicError)

	wg           sync.WaitGroup
	shutdownOnce sync.Once

	mu       sync.Mutex
	joinErrs []error
}

// NewPool は numWorkers 個のワーカーを起動したプールを返す
func NewPool(numWorkers int) (*Pool, error) {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してプールを作成する
// 戻った時点で全ワーカーが起動している
func NewPoolWithConfig(config PoolConfig) (*Pool, error) {
	if config.NumWorkers < 1 {
		return nil, ErrInvalidWorkerCount
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New()
	}

	p := &Pool{
		numWorkers: config.NumWorkers,
		queue:      NewQueue(),
		metrics:    m,
		onPanic:    config.OnPanic,
	}

	p.wg.Add(p.numWorkers)
	for i := range p.numWorkers {
		go p.worker(i)
	}

	logger.Info("", "WorkerPool started with %d workers", p.numWorkers)
	return p, nil
}

// worker は個々のワーカーゴルーチン
// キューがクローズされ空になるまでジョブを取り出して実行する
func (p *Pool) worker(id int) {
	log := logger.For(workerName(id))
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("terminated abnormally: %v", r)
			p.recordJoinFailure(&WorkerJoinError{WorkerID: id, Value: r})
		}
	}()

	for {
		e, ok := p.queue.take()
		if !ok {
			log.Debug("queue closed and drained, exiting")
			return
		}
		p.run(log, id, e)
	}
}

// run はジョブを1つ実行し、結果をメトリクスに記録する
func (p *Pool) run(log logger.Component, id int, e entry) {
	// スタックは読み手がいる場合だけ取得する
	withStack := p.onPanic != nil || log.Enabled(logger.LevelDebug)

	start := time.Now()
	perr := invoke(id, e, withStack)
	latency := time.Since(start)

	if perr == nil {
		p.metrics.RecordSuccess(latency)
		return
	}

	p.metrics.RecordPanic(latency)
	log.Warn("job #%d panicked: %v", e.seq, perr.Value)
	if perr.Stack != nil {
		log.Debug("job #%d stack:\n%s", e.seq, perr.Stack)
	}

	if p.onPanic != nil {
		p.notify(log, perr)
	}
}

// notify は OnPanic フックを呼ぶ
// フック内のパニックは回収して Shutdown で報告し、ワーカーは次のジョブへ進む
func (p *Pool) notify(log logger.Component, perr *JobPanicError) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic hook failed for job #%d: %v", perr.Seq, r)
			p.recordJoinFailure(&WorkerJoinError{WorkerID: perr.WorkerID, Value: r})
		}
	}()

	p.onPanic(perr)
}

// invoke はジョブ単位でパニックを回収する
func invoke(id int, e entry, withStack bool) (perr *JobPanicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = &JobPanicError{
				WorkerID: id,
				Seq:      e.seq,
				Value:    r,
			}
			if withStack {
				perr.Stack = debug.Stack()
			}
		}
	}()

	e.job()
	return nil
}

func (p *Pool) recordJoinFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinErrs = append(p.joinErrs, err)
}

// Execute はジョブをキューに投入する。完了は待たない
// Shutdown 開始後は ErrQueueClosed を返す
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	return p.queue.Push(job)
}

// Shutdown はキューをクローズし、全ワーカーの終了を待つ
// 2回目以降の呼び出しは何もせず nil を返す
func (p *Pool) Shutdown() error {
	first := false
	p.shutdownOnce.Do(func() {
		first = true
		pending := p.queue.Len()
		p.queue.Close()
		logger.Debug("", "WorkerPool shutting down, %d jobs pending", pending)
		p.wg.Wait()
	})
	if !first {
		return nil
	}

	p.mu.Lock()
	err := errors.Join(p.joinErrs...)
	p.mu.Unlock()

	if err != nil {
		logger.Error("", "WorkerPool stopped with errors: %v", err)
		return err
	}
	logger.Info("", "WorkerPool stopped (jobs: %d, panicked: %d)",
		p.metrics.TotalJobs(), p.metrics.PanickedJobs())
	return nil
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize は未処理のジョブ数を返す
func (p *Pool) QueueSize() int {
	return p.queue.Len()
}

// Metrics はプールのジョブメトリクスを返す
func (p *Pool) Metrics() *metrics.Metrics {
	return p.metrics
}
