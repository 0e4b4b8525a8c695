package config

import (
	"sort"
	"strings"
)

// Entry is one line of an env document. Key is empty for comments, blank
// lines and anything else that is not a KEY=VALUE assignment.
type Entry struct {
	Key   string
	Value string
	// Raw holds the line exactly as read, without its terminating newline.
	Raw string
}

// Document is a line-oriented KEY=VALUE document that remembers every byte
// of its source, so that formatting a parsed document reproduces it exactly.
type Document struct {
	Entries []Entry

	// trailingNewline records whether the source ended with a newline.
	trailingNewline bool
}

// Parse parses data as an env document. It never fails: lines that are not
// assignments are kept as opaque entries.
func Parse(data []byte) *Document {
	doc := &Document{}
	if len(data) == 0 {
		return doc
	}
	lines := strings.Split(string(data), "\n")
	if lines[len(lines)-1] == "" {
		doc.trailingNewline = true
		lines = lines[:len(lines)-1]
	}
	doc.Entries = make([]Entry, 0, len(lines))
	for _, line := range lines {
		doc.Entries = append(doc.Entries, parseLine(line))
	}
	return doc
}

func parseLine(raw string) Entry {
	e := Entry{Raw: raw}
	line := strings.TrimSuffix(raw, "\r")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return e
	}
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return e
	}
	key := strings.TrimSpace(line[:i])
	key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
	if key == "" || strings.ContainsAny(key, " \t") {
		return e
	}
	e.Key = key
	value, _ := splitComment(line[i+1:])
	e.Value = unquote(strings.TrimSpace(value))
	return e
}

// splitComment separates the text after '=' into the value and a trailing
// comment. The comment keeps the blanks before its '#'. A '#' only starts a
// comment after a blank, and never inside quotes.
func splitComment(rest string) (value, comment string) {
	v := strings.TrimLeft(rest, " \t")
	if v != "" && (v[0] == '"' || v[0] == '\'') {
		if end := strings.IndexByte(v[1:], v[0]); end >= 0 {
			n := len(rest) - len(v) + end + 2
			return rest[:n], rest[n:]
		}
		return rest, ""
	}
	for i := 1; i < len(rest); i++ {
		if rest[i] != '#' || (rest[i-1] != ' ' && rest[i-1] != '\t') {
			continue
		}
		j := i
		for j > 0 && (rest[j-1] == ' ' || rest[j-1] == '\t') {
			j--
		}
		return rest[:j], rest[j:]
	}
	return rest, ""
}

func unquote(v string) string {
	if len(v) >= 2 {
		if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// Bytes formats the document.
func (d *Document) Bytes() []byte {
	var b strings.Builder
	for i, e := range d.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Raw)
	}
	if d.trailingNewline {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Lookup returns the value of the last assignment to key.
func (d *Document) Lookup(key string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, e := range d.Entries {
		if e.Key == key {
			value, found = e.Value, true
		}
	}
	return value, found
}

// Values returns every assignment in the document. Later assignments win.
func (d *Document) Values() map[string]string {
	m := make(map[string]string)
	for _, e := range d.Entries {
		if e.Key != "" {
			m[e.Key] = e.Value
		}
	}
	return m
}

// Merge replaces the value portion of every line assigning one of the keys in
// values, leaving the text before the '=', any trailing comment and every
// other line untouched. It returns the sorted keys of values that the
// document does not assign.
func (d *Document) Merge(values map[string]string) (missing []string) {
	seen := make(map[string]bool)
	for i, e := range d.Entries {
		v, ok := values[e.Key]
		if e.Key == "" || !ok {
			continue
		}
		seen[e.Key] = true
		d.Entries[i] = replaceValue(e, v)
	}
	for k := range values {
		if !seen[k] {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

func replaceValue(e Entry, value string) Entry {
	line := e.Raw
	cr := ""
	if strings.HasSuffix(line, "\r") {
		cr = "\r"
		line = line[:len(line)-1]
	}
	i := strings.IndexByte(line, '=')
	_, comment := splitComment(line[i+1:])
	return Entry{
		Key:   e.Key,
		Value: value,
		Raw:   line[:i+1] + value + comment + cr,
	}
}

// Append adds an assignment at the end of the document.
func (d *Document) Append(key, value string) {
	if len(d.Entries) == 0 {
		d.trailingNewline = true
	}
	d.Entries = append(d.Entries, Entry{
		Key:   key,
		Value: value,
		Raw:   key + "=" + value,
	})
}
