// Package formats classifies buffered content as JSON, CSV or unknown.
//
// JSON is always tried first with a full parse, so content that is valid
// as both is reported as JSON. CSV is recognized by sniffing a dialect
// over the first SampleSize bytes.
package formats

import (
	"bytes"

	"github.com/ajitpratap0/mongobridge/pkg/json"
)

// Format is a content encoding
type Format string

const (
	// FormatJSON is any valid JSON document
	FormatJSON Format = "json"
	// FormatCSV is delimited text with a consistent delimiter
	FormatCSV Format = "csv"
	// FormatUnknown is neither
	FormatUnknown Format = "unknown"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Detection is the outcome of Detect
type Detection struct {
	Format Format
	// Dialect is set for FormatCSV
	Dialect Dialect
	// Reason explains an unknown result
	Reason string
}

// Detect classifies content. Content that fails the JSON parse is always
// sniffed for CSV, whatever its first character.
func Detect(content []byte) Detection {
	content = bytes.TrimPrefix(content, bom)

	if json.Valid(content) {
		return Detection{Format: FormatJSON}
	}

	sample := content
	truncated := false
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
		truncated = true
	}

	dialect, err := Sniff(sample, truncated)
	if err != nil {
		return Detection{Format: FormatUnknown, Reason: err.Error()}
	}
	return Detection{Format: FormatCSV, Dialect: dialect}
}

// StripBOM removes a leading UTF-8 byte order mark
func StripBOM(content []byte) []byte {
	return bytes.TrimPrefix(content, bom)
}
