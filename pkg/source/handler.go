// Package source resolves a source reference into a buffered content blob.
//
// A reference starting with "https:" is fetched with one GET. Otherwise a
// reference naming an existing file is read from disk. Anything else is
// unrecognized, and nothing beyond the existence check touches the network
// or the filesystem.
package source

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/clients"
	"github.com/ajitpratap0/mongobridge/pkg/compression"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"go.uber.org/zap"
)

// RemotePrefix marks a reference as remote
const RemotePrefix = "https:"

// Kind classifies a source reference
type Kind string

const (
	// KindRemote is an https reference whose body was fetched
	KindRemote Kind = "remote"
	// KindLocal is an existing file that was read
	KindLocal Kind = "local"
	// KindUnrecognized is neither, or a remote reference that failed
	KindUnrecognized Kind = "unrecognized"
)

// Source is a resolved reference
type Source struct {
	Ref  string
	Kind Kind
	// Content is the whole payload, decompressed when Compression is set
	Content []byte
	// Compression is the algorithm detected on the raw payload
	Compression compression.Algorithm
	// RawSize is the payload size before decompression
	RawSize  int
	Duration time.Duration
}

// Fetcher performs a single buffered GET
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*clients.FetchResult, error)
}

// FileSystem is the slice of the filesystem the handler touches
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// Options configures a Handler
type Options struct {
	// Decompress undoes gzip, zstd or lz4 framing on resolved content
	Decompress bool
	// MaxBytes caps the decompressed size, 0 means unlimited
	MaxBytes int64
	// FS overrides the filesystem, the OS by default
	FS FileSystem
}

// Handler classifies and resolves source references
type Handler struct {
	fetcher Fetcher
	fs      FileSystem
	opts    Options
	logger  *zap.Logger
}

// NewHandler creates a handler that fetches remote references with fetcher
func NewHandler(fetcher Fetcher, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = osFS{}
	}
	return &Handler{
		fetcher: fetcher,
		fs:      fsys,
		opts:    opts,
		logger:  logger.With(zap.String("component", "source_handler")),
	}
}

// IsRemote reports whether ref is a remote reference
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, RemotePrefix)
}

// Classify resolves ref. The returned Source is never nil; its Kind is
// KindUnrecognized whenever err is non-nil.
func (h *Handler) Classify(ctx context.Context, ref string) (*Source, error) {
	start := time.Now()
	src := &Source{Ref: ref, Kind: KindUnrecognized, Compression: compression.None}

	var (
		content []byte
		err     error
	)
	switch {
	case IsRemote(ref):
		content, err = h.fetchRemote(ctx, ref)
		if err == nil {
			src.Kind = KindRemote
		}
	default:
		content, err = h.readLocal(ref)
		if err == nil {
			src.Kind = KindLocal
		}
	}
	if err != nil {
		src.Duration = time.Since(start)
		return src, err
	}

	src.RawSize = len(content)
	if h.opts.Decompress {
		if alg := compression.Detect(content); alg != compression.None {
			inflated, derr := compression.Decompress(alg, content, h.opts.MaxBytes)
			if derr != nil {
				src.Kind = KindUnrecognized
				src.Duration = time.Since(start)
				h.logger.Error("failed to decompress source", zap.String("algorithm", string(alg)), zap.Error(derr))
				return src, errors.Wrap(derr, errors.ErrorTypeData, "failed to decompress source").
					WithDetail("algorithm", string(alg))
			}
			src.Compression = alg
			content = inflated
		}
	}

	src.Content = content
	src.Duration = time.Since(start)

	h.logger.Info("source resolved",
		zap.String("kind", string(src.Kind)),
		zap.Int("bytes", len(src.Content)),
		zap.String("compression", string(src.Compression)),
		zap.Duration("duration", src.Duration))

	return src, nil
}

func (h *Handler) fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	if h.fetcher == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "no fetcher configured for remote sources")
	}
	res, err := h.fetcher.Fetch(ctx, ref)
	if err != nil {
		h.logger.Error("remote source unavailable", zap.Error(err))
		return nil, err
	}
	return res.Body, nil
}

func (h *Handler) readLocal(ref string) ([]byte, error) {
	info, err := h.fs.Stat(ref)
	if err != nil {
		h.logger.Warn("source is neither an https URL nor an existing path")
		return nil, errors.New(errors.ErrorTypeSource, "source is neither an https URL nor an existing path").
			WithDetail("ref", ref)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrorTypeSource, "source path is a directory").WithDetail("ref", ref)
	}

	content, err := h.fs.ReadFile(ref)
	if err != nil {
		h.logger.Error("failed to read local source", zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read local source")
	}
	return content, nil
}
