// Package demux drains several byte streams on one goroutine.
//
// A Loop owns a Registry of streams. Each iteration it snapshots the
// registered handles, blocks in a Waiter until some of them are readable,
// performs exactly one read per ready handle in ascending handle order and
// hands every non-empty chunk to a Sink tagged with the stream's origin.
// A zero-byte read (or io.EOF) marks a stream as finished; finished streams
// are unregistered after the batch. The loop ends when the registry is empty.
//
// Any other failure (of the wait, a read or the sink) stops the loop and is
// returned to the caller. Nothing is retried.
//
//	loop, err := demux.New(proc.Sources(), sink)
//	if err != nil {
//		return err
//	}
//	if err := loop.Run(ctx); err != nil {
//		return err
//	}
package demux
