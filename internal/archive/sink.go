package archive

import (
	"io"
	"os"
	"sync"
)

// Sink receives the serialized record when the object store cannot.
type Sink interface {
	Write(body []byte) error
}

// WriterSink writes one record per line to an io.Writer. Writes are
// serialized so concurrent fallbacks never interleave.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// NewStdoutSink returns the default fallback sink.
func NewStdoutSink() *WriterSink {
	return NewWriterSink(os.Stdout)
}

// Write appends body and a newline.
func (s *WriterSink) Write(body []byte) error {
	line := make([]byte, 0, len(body)+1)
	line = append(line, body...)
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(line)
	return err
}
