package worker

import "sync"

// entry はキュー内のジョブと投入順の番号
type entry struct {
	seq uint64
	job Job
}

// Queue は上限のないFIFOジョブキュー
// 複数の送信側と複数の受信側から同時に使用できる
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []entry
	nextSeq uint64
	closed  bool
}

// NewQueue は空のキューを作成する
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push はジョブを末尾に追加し、待機中のワーカーを1つ起こす
// Close 後は ErrQueueClosed を返す
func (q *Queue) Push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.nextSeq++
	q.items = append(q.items, entry{seq: q.nextSeq, job: job})
	q.cond.Signal()
	return nil
}

// take はジョブが来るまでブロックし、先頭のエントリを返す
// クローズ済みかつ空の場合は false を返し、以後ブロックしない
func (q *Queue) take() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return entry{}, false
	}

	e := q.items[0]
	q.items[0] = entry{}
	q.items = q.items[1:]
	return e, true
}

// Close は以降の投入を拒否し、take で待機中の全ワーカーを起こす
// 残っているジョブはそのまま取り出せる。冪等
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len は未処理のジョブ数を返す
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
