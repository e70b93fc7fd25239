package session

// Sink receives streamed generation output. Exactly one OnComplete or one
// OnError terminates a streaming call; OnToken may be called zero or more
// times before that. Implementations that cross goroutine boundaries should
// deliver into the owning goroutine via a channel rather than sharing state.
type Sink interface {
	OnLog(msg string)
	OnToken(chunk string)
	OnComplete()
	OnError(msg string)
}

// NopSink discards everything. It stands in wherever a caller has not
// registered a real sink, so session code never nil-checks.
type NopSink struct{}

func (NopSink) OnLog(string)   {}
func (NopSink) OnToken(string) {}
func (NopSink) OnComplete()    {}
func (NopSink) OnError(string) {}
