package session

// Emitter buffers generated bytes and flushes only verified-safe chunks:
// never a partial UTF-8 character, and never bytes that are (or could grow
// into) a configured stop string. The ordered concatenation of everything
// emitted plus the final flush equals the post-truncation accumulated text.
type Emitter struct {
	hold int
	buf  []byte
	off  int // bytes already emitted; off <= len(buf) always
	emit func(string)
}

// NewEmitter creates an emitter that withholds holdBack trailing bytes from
// every intermediate flush. emit may be nil for non-streaming callers that
// only want the accumulated text.
func NewEmitter(holdBack int, emit func(string)) *Emitter {
	if holdBack < 0 {
		holdBack = 0
	}
	return &Emitter{hold: holdBack, emit: emit}
}

// Append adds one token's byte fragment and flushes any now-safe prefix.
func (e *Emitter) Append(b []byte) {
	e.buf = append(e.buf, b...)
	safe := len(e.buf) - e.hold
	if safe <= e.off {
		return
	}
	safe = utf8SafeCut(e.buf, safe)
	if safe > e.off {
		e.send(e.buf[e.off:safe])
		e.off = safe
	}
}

// Truncate drops n bytes from the tail, used when a stop rule matched so the
// stop text is never surfaced. The hold-back guarantees those bytes were
// never emitted.
func (e *Emitter) Truncate(n int) {
	if n <= 0 {
		return
	}
	if n > len(e.buf)-e.off {
		n = len(e.buf) - e.off
	}
	e.buf = e.buf[:len(e.buf)-n]
}

// Flush emits the remaining buffered suffix on session termination. A
// trailing incomplete UTF-8 sequence is dropped from the buffer as well, so
// Text and the streamed chunks stay equal and valid.
func (e *Emitter) Flush() {
	end := utf8SafeCut(e.buf, len(e.buf))
	e.buf = e.buf[:end]
	if end > e.off {
		e.send(e.buf[e.off:end])
		e.off = end
	}
}

// Text returns the accumulated text. Call after Flush for the final,
// boundary-trimmed value.
func (e *Emitter) Text() string { return string(e.buf) }

// Bytes exposes the accumulated buffer for suffix matching. Callers must not
// retain or mutate it.
func (e *Emitter) Bytes() []byte { return e.buf }

// Pending reports how many bytes are buffered but not yet emitted.
func (e *Emitter) Pending() int { return len(e.buf) - e.off }

func (e *Emitter) send(b []byte) {
	if e.emit != nil && len(b) > 0 {
		e.emit(string(b))
	}
}

// utf8SafeCut returns the largest i <= n such that b[:i] does not end in the
// middle of a multi-byte UTF-8 character. Malformed sequences pass through
// unchanged; only a genuinely incomplete trailing rune is withheld.
func utf8SafeCut(b []byte, n int) int {
	if n <= 0 {
		return 0
	}
	start := n - 1
	for start > 0 && n-start < 4 && b[start]&0xC0 == 0x80 {
		start--
	}
	lead := b[start]
	if lead&0xC0 == 0x80 {
		// Continuation bytes all the way down: malformed, not incomplete.
		return n
	}
	var need int
	switch {
	case lead < 0x80:
		need = 1
	case lead&0xE0 == 0xC0:
		need = 2
	case lead&0xF0 == 0xE0:
		need = 3
	case lead&0xF8 == 0xF0:
		need = 4
	default:
		return n
	}
	if start+need <= n {
		return n
	}
	return start
}
