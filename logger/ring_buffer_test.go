package logger

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name       string
		maxSize    int
		writes     []string
		wantOffset int64
		want       string
	}{{
		name:    "UnderLimit",
		maxSize: 64,
		writes:  []string{"backend: started\n", "backend: ready\n"},
		want:    "backend: started\nbackend: ready\n",
	}, {
		name:       "DropsOldestWholeLines",
		maxSize:    8,
		writes:     []string{"hello world\n", "more\n"},
		wantOffset: 12,
		want:       "more\n",
	}, {
		name:       "NoCompleteLineRetained",
		maxSize:    10,
		writes:     []string{"hello world\nhello world\n"},
		wantOffset: 24,
		want:       "",
	}, {
		name:       "TrimsToLineBoundary",
		maxSize:    12,
		writes:     []string{"aaaa\nbbbb\n", "cc\ndd"},
		wantOffset: 5,
		want:       "bbbb\ncc\ndd",
	}}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			b := &ringBuffer{maxSize: test.maxSize}
			for _, w := range test.writes {
				n, err := b.Write([]byte(w))
				c.Assert(err, qt.IsNil)
				c.Assert(n, qt.Equals, len(w))
			}
			offset, data := b.bytes()
			c.Assert(offset, qt.Equals, test.wantOffset)
			c.Assert(string(data), qt.Equals, test.want)
		})
	}
}
