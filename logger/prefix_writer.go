package logger

import (
	"bytes"
	"io"
)

// prefixWriter writes each complete line to w preceded by prefix. A trailing
// partial line is held back until it is completed or the writer is closed.
type prefixWriter struct {
	w       io.Writer
	prefix  []byte
	partial []byte
}

func newPrefixWriter(w io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{
		w:      w,
		prefix: []byte(prefix),
	}
}

func (pw *prefixWriter) Write(buf []byte) (int, error) {
	n := len(buf)
	var out []byte
	for len(buf) > 0 {
		i := bytes.IndexByte(buf, '\n')
		if i == -1 {
			pw.partial = append(pw.partial, buf...)
			break
		}
		out = append(out, pw.prefix...)
		out = append(out, pw.partial...)
		out = append(out, buf[:i+1]...)
		pw.partial = pw.partial[:0]
		buf = buf[i+1:]
	}
	if len(out) == 0 {
		return n, nil
	}
	if _, err := pw.w.Write(out); err != nil {
		return 0, err
	}
	return n, nil
}

// Close writes out any partial line, terminating it with a newline.
func (pw *prefixWriter) Close() error {
	if len(pw.partial) == 0 {
		return nil
	}
	out := append(append(append([]byte(nil), pw.prefix...), pw.partial...), '\n')
	pw.partial = nil
	_, err := pw.w.Write(out)
	return err
}
