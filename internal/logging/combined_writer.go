package logging

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter fans each write out to all writers and keeps going past
// failures; the returned error combines every failure.
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{Writers: append([]io.Writer(nil), writers...)}
}

func (cw CombinedWriter) Write(p []byte) (n int, err error) {
	for _, w := range cw.Writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Combine(err, werr)
			continue
		}
		n += written
	}
	return n, err
}
