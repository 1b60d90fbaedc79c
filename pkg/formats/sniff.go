package formats

import (
	"bytes"
	"fmt"
)

// SampleSize is the number of leading bytes the CSV sniffer inspects
const SampleSize = 1024

// Delimiters are the candidate field separators in preference order
var Delimiters = []rune{',', ';', '\t', '|', ':'}

// Dialect describes how a CSV document is delimited
type Dialect struct {
	Delimiter rune
	Quote     rune
}

// String implements fmt.Stringer
func (d Dialect) String() string {
	return fmt.Sprintf("delimiter=%q quote=%q", d.Delimiter, d.Quote)
}

// Sniff guesses the dialect of a CSV sample. A delimiter qualifies when it
// occurs the same non-zero number of times, outside quotes, on every
// complete line of the sample. When the sample was cut mid-line the
// partial last line is ignored.
func Sniff(sample []byte, truncated bool) (Dialect, error) {
	sample = bytes.TrimPrefix(sample, bom)
	lines := splitRecords(sample, '"')
	if truncated && len(lines) > 1 && !endsWithNewline(sample) {
		lines = lines[:len(lines)-1]
	}

	nonEmpty := lines[:0]
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) > 0 {
			nonEmpty = append(nonEmpty, line)
		}
	}
	if len(nonEmpty) == 0 {
		return Dialect{}, fmt.Errorf("could not determine delimiter: empty sample")
	}

	for _, delim := range Delimiters {
		if consistent(nonEmpty, delim, '"') {
			return Dialect{Delimiter: delim, Quote: '"'}, nil
		}
	}
	return Dialect{}, fmt.Errorf("could not determine delimiter")
}

// consistent reports whether delim occurs the same non-zero number of
// times on every line.
func consistent(lines [][]byte, delim, quote rune) bool {
	want := -1
	for _, line := range lines {
		n := countOutsideQuotes(line, byte(delim), byte(quote))
		if n == 0 {
			return false
		}
		if want == -1 {
			want = n
		} else if n != want {
			return false
		}
	}
	return true
}

func countOutsideQuotes(line []byte, delim, quote byte) int {
	n := 0
	inQuotes := false
	for _, c := range line {
		switch {
		case c == quote:
			inQuotes = !inQuotes
		case c == delim && !inQuotes:
			n++
		}
	}
	return n
}

// splitRecords splits on newlines that are not inside a quoted field,
// dropping carriage returns that precede them.
func splitRecords(data []byte, quote byte) [][]byte {
	var out [][]byte
	inQuotes := false
	start := 0
	for i, c := range data {
		switch {
		case c == quote:
			inQuotes = !inQuotes
		case c == '\n' && !inQuotes:
			out = append(out, bytes.TrimSuffix(data[start:i], []byte{'\r'}))
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}

func endsWithNewline(b []byte) bool {
	return len(b) > 0 && b[len(b)-1] == '\n'
}
