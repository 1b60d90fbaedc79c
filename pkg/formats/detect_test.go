package formats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		want      Format
		delimiter rune
	}{
		{"json array", `[{"title":"Carbonara"},{"title":"Gricia"}]`, FormatJSON, 0},
		{"json object", `{"title":"Carbonara"}`, FormatJSON, 0},
		{"json scalar", `42`, FormatJSON, 0},
		{"json with bom", "\xEF\xBB\xBF[]", FormatJSON, 0},
		{"comma csv", "title,minutes\nCarbonara,20\nGricia,25\n", FormatCSV, ','},
		{"semicolon csv", "title;minutes\nCarbonara;20\n", FormatCSV, ';'},
		{"tab csv", "title\tminutes\nCarbonara\t20\n", FormatCSV, '\t'},
		{"pipe csv", "title|minutes\nCarbonara|20\n", FormatCSV, '|'},
		{"crlf csv", "title,minutes\r\nCarbonara,20\r\n", FormatCSV, ','},
		{"quoted delimiter", "title,notes\n\"Carbonara\",\"eggs, pecorino\"\n", FormatCSV, ','},
		{"quoted newline", "title,notes\nCarbonara,\"line one\nline two\"\n", FormatCSV, ','},
		{"single column", "title\nCarbonara\n", FormatUnknown, 0},
		{"inconsistent", "a,b,c\n1,2\n", FormatUnknown, 0},
		{"prose", "just some words here\n", FormatUnknown, 0},
		{"empty", "", FormatUnknown, 0},
		{"broken json", "[{\"title\": \"Carbonara\",\n\"minutes\"", FormatUnknown, 0},
		{"csv with bracketed cells", "[tag],value\n[a],1\n[b],2\n", FormatCSV, ','},
		{"csv with braced cells", "{x};y\n{1};2\n", FormatCSV, ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect([]byte(tt.content))
			assert.Equal(t, tt.want, got.Format)
			if tt.want == FormatCSV {
				assert.Equal(t, tt.delimiter, got.Dialect.Delimiter)
			}
			if tt.want == FormatUnknown {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestDetect_OnlyFirstKilobyteIsSniffed(t *testing.T) {
	var b strings.Builder
	b.WriteString("title,minutes\n")
	for b.Len() < SampleSize+200 {
		b.WriteString("Carbonara,20\n")
	}
	// Rows past the sample would fail a consistency check
	b.WriteString("odd;row;beyond;sample\n")

	got := Detect([]byte(b.String()))
	assert.Equal(t, FormatCSV, got.Format)
	assert.Equal(t, ',', got.Dialect.Delimiter)
}

func TestSniff_PartialLastLineIgnored(t *testing.T) {
	d, err := Sniff([]byte("a,b\n1,2\n3,4,"), true)
	require.NoError(t, err)
	assert.Equal(t, ',', d.Delimiter)

	_, err = Sniff([]byte("a,b\n1,2\n3,4,"), false)
	assert.Error(t, err)
}

func TestStripBOM(t *testing.T) {
	assert.Equal(t, []byte("a,b"), StripBOM([]byte("\xEF\xBB\xBFa,b")))
	assert.Equal(t, []byte("a,b"), StripBOM([]byte("a,b")))
}
