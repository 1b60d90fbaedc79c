package source

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/mongobridge/pkg/clients"
	"github.com/ajitpratap0/mongobridge/pkg/compression"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingFetcher struct {
	calls []string
	body  []byte
	err   error
}

func (f *recordingFetcher) Fetch(_ context.Context, url string) (*clients.FetchResult, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	return &clients.FetchResult{StatusCode: http.StatusOK, Body: f.body}, nil
}

type recordingFS struct {
	stats []string
	reads []string
}

func (r *recordingFS) Stat(name string) (fs.FileInfo, error) {
	r.stats = append(r.stats, name)
	return os.Stat(name)
}

func (r *recordingFS) ReadFile(name string) ([]byte, error) {
	r.reads = append(r.reads, name)
	return os.ReadFile(name)
}

func TestClassify_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pasta.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"a":1}]`), 0o600))

	fetcher := &recordingFetcher{}
	src, err := NewHandler(fetcher, Options{}, zaptest.NewLogger(t)).Classify(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, KindLocal, src.Kind)
	assert.Equal(t, `[{"a":1}]`, string(src.Content))
	assert.Empty(t, fetcher.calls)
}

func TestClassify_Remote(t *testing.T) {
	fetcher := &recordingFetcher{body: []byte("name,age\nana,3\n")}
	fsys := &recordingFS{}
	h := NewHandler(fetcher, Options{FS: fsys}, zaptest.NewLogger(t))

	src, err := h.Classify(context.Background(), "https://example.com/pasta.csv")
	require.NoError(t, err)

	assert.Equal(t, KindRemote, src.Kind)
	assert.Equal(t, []string{"https://example.com/pasta.csv"}, fetcher.calls)
	assert.Empty(t, fsys.stats)
}

func TestClassify_UnrecognizedDoesNoIO(t *testing.T) {
	refs := []string{
		filepath.Join(t.TempDir(), "absent.json"),
		"http://example.com/plain-http.json",
		"ftp://example.com/data.csv",
		"HTTPS://example.com/upper.json",
	}

	for _, ref := range refs {
		t.Run(ref, func(t *testing.T) {
			fetcher := &recordingFetcher{}
			fsys := &recordingFS{}
			h := NewHandler(fetcher, Options{FS: fsys}, zaptest.NewLogger(t))

			src, err := h.Classify(context.Background(), ref)
			require.Error(t, err)

			assert.Equal(t, KindUnrecognized, src.Kind)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSource))
			assert.Empty(t, fetcher.calls, "no network I/O")
			assert.Empty(t, fsys.reads, "no file reads")
			assert.Equal(t, []string{ref}, fsys.stats, "only the existence check")
		})
	}
}

func TestClassify_Remote404IsUnrecognized(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := clients.DefaultHTTPConfig()
	cfg.InsecureSkipVerify = true
	client := clients.NewHTTPClient(cfg, zaptest.NewLogger(t))
	defer client.Close()

	src, err := NewHandler(client, Options{}, zaptest.NewLogger(t)).Classify(context.Background(), srv.URL+"/gone.json")
	require.Error(t, err)
	assert.Equal(t, KindUnrecognized, src.Kind)
	assert.Nil(t, src.Content)
}

func TestClassify_Directory(t *testing.T) {
	src, err := NewHandler(nil, Options{}, nil).Classify(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, KindUnrecognized, src.Kind)
}

func TestClassify_Decompresses(t *testing.T) {
	payload := []byte(`[{"title":"Carbonara"}]`)
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			packed, err := compression.Compress(alg, payload)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), "pasta.json."+string(alg))
			require.NoError(t, os.WriteFile(path, packed, 0o600))

			src, err := NewHandler(nil, Options{Decompress: true}, nil).Classify(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, alg, src.Compression)
			assert.Equal(t, payload, src.Content)
			assert.Equal(t, len(packed), src.RawSize)
		})
	}
}

func TestClassify_DecompressDisabled(t *testing.T) {
	packed, err := compression.Compress(compression.Gzip, []byte(`[]`))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "raw.gz")
	require.NoError(t, os.WriteFile(path, packed, 0o600))

	src, err := NewHandler(nil, Options{}, nil).Classify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, compression.None, src.Compression)
	assert.Equal(t, packed, src.Content)
}
