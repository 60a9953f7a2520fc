// Package metrics collects per-job execution statistics for a worker pool.
//
// Metrics counts completed and panicked jobs, accumulates execution
// latency and keeps a bounded sample of latencies for percentile
// estimates. Counters are atomic; the sample buffer is guarded by a mutex,
// so a single Metrics value can be shared by every worker of a pool.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	job()
//	m.RecordSuccess(time.Since(start))
//
//	fmt.Printf("jobs: %d, jobs/s: %.2f, p99: %v\n",
//	    m.TotalJobs(), m.OverallJobsPerSecond(), m.P99Latency())
//
// # Configuration
//
// NewWithConfig bounds the latency sample:
//
//	m := metrics.NewWithConfig(metrics.Config{MaxLatencySamples: 10000})
package metrics
