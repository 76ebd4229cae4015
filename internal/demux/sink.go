package demux

// Tag names the logical origin of a stream. It is used for routing and
// presentation only, never for read or end-of-stream decisions.
type Tag string

const (
	TagStdout Tag = "stdout"
	TagStderr Tag = "stderr"
)

// Sink receives every non-empty read, in dispatch order.
//
// The data slice is the loop's reusable read buffer and is only valid for the
// duration of the call; a Sink that keeps bytes around must copy them.
// A Sink must not block indefinitely since it runs on the loop's goroutine.
type Sink interface {
	Write(tag Tag, data []byte) error
}

// SinkFunc adapts a plain function to the Sink interface
type SinkFunc func(tag Tag, data []byte) error

func (f SinkFunc) Write(tag Tag, data []byte) error { return f(tag, data) }
