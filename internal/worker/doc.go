// Package worker provides a fixed-size goroutine pool backed by an
// unbounded FIFO job queue.
//
// NewPool starts every worker before it returns, so the pool is warm as
// soon as it exists. Execute never waits for a job to finish; a job that
// needs to report a result writes it into state the caller owns (and
// guards).
//
// # Basic Usage
//
//	pool, err := worker.NewPool(4)
//	if err != nil {
//	    return err
//	}
//	defer pool.Shutdown()
//
//	for _, line := range lines {
//	    if err := pool.Execute(func() {
//	        out.WriteRecord(digest.Record(line))
//	    }); err != nil {
//	        return err
//	    }
//	}
//
// # Shutdown
//
// Shutdown closes the queue, lets the workers drain every job that was
// accepted, and blocks until all of them have exited. It is idempotent;
// Execute returns ErrQueueClosed once shutdown has begun.
//
// # Panics
//
// A panicking job is recovered inside the worker that ran it. The panic
// is logged, counted in the pool's metrics and passed to
// PoolConfig.OnPanic as a *JobPanicError; the worker then takes the next
// job. The stack is captured only when OnPanic is set or debug logging is
// on. A panic inside OnPanic is recovered as well: the worker keeps
// running and Shutdown reports the failure as a *WorkerJoinError.
package worker
