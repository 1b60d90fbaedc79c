// Package loader parses classified content into records and bulk-inserts
// them into a document collection.
//
// Inserts are not idempotent: loading the same content twice into one
// collection stores every record twice.
package loader

import (
	"context"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/formats"
	"go.uber.org/zap"
)

// Inserter stores documents in one bulk call and returns how many were
// inserted.
type Inserter interface {
	InsertMany(ctx context.Context, docs []interface{}) (int, error)
}

// Result summarizes a load
type Result struct {
	Format   formats.Format
	Parsed   int
	Inserted int
	Duration time.Duration
}

// Loader inserts parsed records through an Inserter
type Loader struct {
	inserter Inserter
	logger   *zap.Logger
}

// New creates a loader writing to inserter
func New(inserter Inserter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		inserter: inserter,
		logger:   logger.With(zap.String("component", "loader")),
	}
}

// Load parses content according to det and inserts every record in a
// single bulk call. An empty record set is not inserted.
func (l *Loader) Load(ctx context.Context, content []byte, det formats.Detection) (*Result, error) {
	start := time.Now()
	result := &Result{Format: det.Format}

	if det.Format == formats.FormatUnknown || det.Format == "" {
		err := errors.New(errors.ErrorTypeFormat, "refusing to load content of unknown format").
			WithDetail("reason", det.Reason)
		l.logger.Error("unsupported content", zap.String("reason", det.Reason))
		return result, err
	}

	records, err := Parse(content, det)
	if err != nil {
		l.logger.Error("failed to parse content", zap.String("format", string(det.Format)), zap.Error(err))
		return result, err
	}
	result.Parsed = len(records)

	if len(records) == 0 {
		l.logger.Warn("no records to insert", zap.String("format", string(det.Format)))
		result.Duration = time.Since(start)
		return result, nil
	}

	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = r
	}

	inserted, err := l.inserter.InsertMany(ctx, docs)
	result.Inserted = inserted
	result.Duration = time.Since(start)
	if err != nil {
		l.logger.Error("bulk insert failed",
			zap.Int("records", len(docs)),
			zap.Int("inserted", inserted),
			zap.Error(err))
		if _, ok := asStructured(err); ok {
			return result, err
		}
		return result, errors.Wrap(err, errors.ErrorTypeQuery, "bulk insert failed")
	}

	l.logger.Info("records loaded",
		zap.String("format", string(det.Format)),
		zap.Int("inserted", inserted),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func asStructured(err error) (*errors.Error, bool) {
	var e *errors.Error
	ok := errors.As(err, &e)
	return e, ok
}
