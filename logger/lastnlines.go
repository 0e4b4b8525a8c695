package logger

import "bytes"

// lastNLines returns the suffix of b holding its last n lines. A final
// line without a trailing newline still counts as a line.
func lastNLines(b []byte, n int) []byte {
	if len(b) == 0 || n <= 0 {
		return nil
	}
	end := len(b)
	if b[end-1] == '\n' {
		end--
	}
	for found := 0; found < n; found++ {
		nl := bytes.LastIndexByte(b[:end], '\n')
		if nl == -1 {
			return b
		}
		end = nl
	}
	return b[end+1:]
}
