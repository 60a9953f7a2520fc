package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"hashpool/internal/logger"
)

// DefaultDebounce はデフォルトのデバウンス時間
const DefaultDebounce = 100 * time.Millisecond

var log = logger.For("watch")

// Func はファイル変更時に呼ばれるコールバック
type Func func(ctx context.Context) error

// Watcher はファイルを監視し、変更のたびにコールバックを呼ぶ
type Watcher struct {
	path     string
	debounce time.Duration
	onChange Func
	fsw      *fsnotify.Watcher
	runs     atomic.Uint64
}

// New は path を監視する Watcher を作成する
// 監視は New の時点で始まり、イベントは Run で処理される
func New(path string, debounce time.Duration, onChange Func) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watch: callback is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		fsw:      fsw,
	}, nil
}

// Path は監視対象の絶対パスを返す
func (w *Watcher) Path() string {
	return w.path
}

// Runs はコールバックを呼んだ回数を返す
func (w *Watcher) Runs() uint64 {
	return w.runs.Load()
}

// relevant は監視対象ファイルへの書き込みかどうかを返す
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

// Run は ctx が終了するまでイベントを処理する
// 終了時に監視を解除する
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	// 最初のイベントまでは発火させない
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	log.Info("Watching %s", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Debug("Event: %s", event)
			// アトミックな書き込みが完了するまで待つ
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			// エラーはログに残して監視を続ける
			log.Warn("Watcher error: %v", err)

		case <-timer.C:
			w.runs.Add(1)
			log.Info("%s changed", filepath.Base(w.path))
			if err := w.onChange(ctx); err != nil {
				log.Error("Rerun failed: %v", err)
			}
		}
	}
}
