package dispatch

import (
	"bytes"
	"sync"
)

// lineWriter buffers child output and emits it line by line. stdout and
// stderr of one child share a single lineWriter, so emit must tolerate
// concurrent Write calls.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(line string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it buffered for the next Write.
			w.buf.WriteString(line)
			break
		}
		w.emit(trimEOL(line))
	}
	return len(p), nil
}

// Flush emits any trailing output the child produced without a final newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(trimEOL(w.buf.String()))
		w.buf.Reset()
	}
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
