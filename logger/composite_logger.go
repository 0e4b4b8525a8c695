package logger

import "io"

// compositeWriter dispatches writes to several destinations. A failing
// destination does not stop the others from receiving the data, and the
// first error is reported.
type compositeWriter struct {
	writers []io.Writer
}

func newCompositeWriter(writers ...io.Writer) *compositeWriter {
	return &compositeWriter{writers: writers}
}

func (cw *compositeWriter) add(w io.Writer) {
	cw.writers = append(cw.writers, w)
}

// Write implements io.Writer by writing to all the destinations in cw.
func (cw *compositeWriter) Write(p []byte) (int, error) {
	var firstErr error
	for _, w := range cw.writers {
		if _, err := w.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return 0, firstErr
	}
	return len(p), nil
}

// Close closes every destination that implements io.Closer.
func (cw *compositeWriter) Close() error {
	var firstErr error
	for _, w := range cw.writers {
		c, ok := w.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
