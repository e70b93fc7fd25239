package httpapi

import (
	"log"
	"net/http"

	json "github.com/goccy/go-json"
)

// lineWriter emits NDJSON lines and flushes after each one so clients see
// tokens as they are produced, not when the response buffer fills.
type lineWriter struct {
	w     http.ResponseWriter
	flush func()
	debug bool
	err   error
}

func newLineWriter(w http.ResponseWriter, lvl LogLevel) *lineWriter {
	lw := &lineWriter{w: w, debug: lvl >= LevelDebug}
	if f, ok := w.(http.Flusher); ok {
		lw.flush = f.Flush
	}
	return lw
}

// WriteLine marshals v, appends a newline, writes, and flushes. After the
// first write failure (client gone) further lines are dropped.
func (lw *lineWriter) WriteLine(v any) {
	if lw.err != nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		lw.err = err
		return
	}
	if lw.debug {
		log.Printf("stream> %s", b)
	}
	b = append(b, '\n')
	if _, err := lw.w.Write(b); err != nil {
		lw.err = err
		return
	}
	if lw.flush != nil {
		lw.flush()
	}
}

// Err reports the first write or marshal failure, if any.
func (lw *lineWriter) Err() error { return lw.err }
