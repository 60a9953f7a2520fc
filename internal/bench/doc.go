// Package bench runs the line-digest benchmark that exercises the worker
// pool and compares it with other ways of spreading the same work.
//
// Every strategy reads the input line by line, computes digest.Record for
// each line and writes the records to <out_dir>/<strategy>.txt:
//
//   - single:   sequential read, hash and write
//   - chunked:  lines split into contiguous chunks, one goroutine per chunk
//   - pool:     one worker.Job per line, records written through a shared sink
//   - errgroup: bounded goroutines via errgroup.SetLimit
//
// Timing covers reading, hashing and writing, up to and including the
// final flush. For the pool strategy that includes draining the pool with
// Shutdown. Elapsed times below MinElapsed are clamped to MinElapsed, so
// speed-up ratios are always finite.
//
// # Basic Usage
//
//	cfg, _ := bench.GetPreset("full")
//	cfg.Input = "wordlist.txt"
//	result, err := bench.New(cfg).Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Report())
package bench
