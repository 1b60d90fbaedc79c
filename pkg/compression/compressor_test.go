package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []byte(`[{"title":"Carbonara","minutes":20},{"title":"Cacio e pepe","minutes":15}]`)

func TestCompressDetectDecompress(t *testing.T) {
	for _, alg := range []Algorithm{Gzip, Zstd, LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			compressed, err := Compress(alg, sample)
			require.NoError(t, err)

			assert.Equal(t, alg, Detect(compressed))

			out, err := Decompress(alg, compressed, 0)
			require.NoError(t, err)
			assert.Equal(t, sample, out)
		})
	}
}

func TestDetect_PlainContent(t *testing.T) {
	assert.Equal(t, None, Detect(sample))
	assert.Equal(t, None, Detect([]byte("name,age\n")))
	assert.Equal(t, None, Detect(nil))
}

func TestDecompress_MaxBytes(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 4096)
	compressed, err := Compress(Gzip, big)
	require.NoError(t, err)

	_, err = Decompress(Gzip, compressed, 1024)
	assert.ErrorContains(t, err, "exceeds 1024 bytes")

	out, err := Decompress(Gzip, compressed, 4096)
	require.NoError(t, err)
	assert.Len(t, out, 4096)
}

func TestDecompress_Corrupt(t *testing.T) {
	_, err := Decompress(Gzip, []byte{0x1f, 0x8b, 0x00}, 0)
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, alg)

	alg, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, alg)

	_, err = ParseAlgorithm("brotli")
	assert.Error(t, err)
}
