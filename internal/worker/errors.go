package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned when a job is submitted after shutdown began.
	ErrQueueClosed = errors.New("worker: queue closed")
	// ErrNilJob is returned when a nil job is submitted.
	ErrNilJob = errors.New("worker: nil job")
	// ErrInvalidWorkerCount is returned by NewPool for fewer than one worker.
	ErrInvalidWorkerCount = errors.New("worker: worker count must be at least 1")
	// ErrJobPanicked matches every *JobPanicError.
	ErrJobPanicked = errors.New("worker: job panicked")
	// ErrWorkerJoin matches every *WorkerJoinError.
	ErrWorkerJoin = errors.New("worker: worker failed outside a job")
)

// JobPanicError はジョブ実行中に回収されたパニックを表す
type JobPanicError struct {
	WorkerID int    // ジョブを実行していたワーカー
	Seq      uint64 // キューが割り当てたジョブ番号
	Value    any    // recover() の戻り値
	Stack    []byte // パニック時点のスタック
}

func (e *JobPanicError) Error() string {
	return fmt.Sprintf("job #%d panicked on %s: %v", e.Seq, workerName(e.WorkerID), e.Value)
}

// Is は ErrJobPanicked との比較を可能にする
func (e *JobPanicError) Is(target error) bool {
	return target == ErrJobPanicked
}

// Unwrap はパニック値が error の場合にそれを返す
func (e *JobPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WorkerJoinError はジョブの外で起きたワーカーの失敗を表す
// OnPanic フックのパニックもここに含まれる（ワーカー自体は継続する）
type WorkerJoinError struct {
	WorkerID int
	Value    any
}

func (e *WorkerJoinError) Error() string {
	return fmt.Sprintf("%s failed outside a job: %v", workerName(e.WorkerID), e.Value)
}

// Is は ErrWorkerJoin との比較を可能にする
func (e *WorkerJoinError) Is(target error) bool {
	return target == ErrWorkerJoin
}

func workerName(id int) string {
	return fmt.Sprintf("worker-%d", id)
}
