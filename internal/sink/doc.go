// Package sink provides an exclusive-access, buffered record writer that
// many pool jobs can share.
//
// Each WriteRecord call holds the sink's lock for exactly one record, so
// records from concurrent jobs never interleave and no job keeps other
// workers waiting longer than a single buffered write.
//
//	out, err := sink.Create("out/pool.txt", sink.DefaultBufferSize)
//	if err != nil {
//	    return err
//	}
//	defer out.Close()
//
//	pool.Execute(func() { _ = out.WriteRecord(digest.Record(line)) })
package sink
