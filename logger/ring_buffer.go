package logger

import "bytes"

// ringBuffer retains the most recent maxSize bytes written to it.
type ringBuffer struct {
	maxSize int
	buf     []byte

	// written holds the total number of bytes ever written.
	written int64
}

func (b *ringBuffer) Write(p []byte) (int, error) {
	b.written += int64(len(p))
	if len(p) >= b.maxSize {
		b.buf = append(b.buf[:0], p[len(p)-b.maxSize:]...)
		return len(p), nil
	}
	if over := len(b.buf) + len(p) - b.maxSize; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// bytes returns the retained data along with its offset in the overall
// stream. Once older data has been dropped, the result starts at a line
// boundary so that no partial line is returned.
func (b *ringBuffer) bytes() (int64, []byte) {
	data := b.buf
	if b.written > int64(len(data)) {
		i := bytes.IndexByte(data, '\n')
		if i == -1 {
			data = nil
		} else {
			data = data[i+1:]
		}
	}
	return b.written - int64(len(data)), data
}
