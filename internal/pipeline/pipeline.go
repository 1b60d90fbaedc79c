// Package pipeline runs the stages of a mongobridge run in order:
// classify the source, detect its format, load it into the document store
// and, when configured, migrate the collection into the relational table.
//
// # Overview
//
// Stages run strictly one after another. The first failing stage ends the
// run and its typed error is returned together with a Report describing
// everything done up to that point. Every stage is timed, traced and
// logged.
//
// # Basic Usage
//
//	p := pipeline.New(pipeline.Config{
//	    Source:   handler,
//	    Loader:   loader.New(collection, logger),
//	    Migrator: migrate.New(opts, logger),
//	    Reader:   collection,
//	    DB:       db,
//	    Logger:   logger,
//	})
//	report, err := p.Run(ctx, "https://example.com/pasta.json")
//
// When the stores should not be contacted for a source that will be
// refused anyway, leave Loader, Reader and DB unset and provide Connect.
// It runs as its own stage once the format is known.
package pipeline

import (
	"context"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/compression"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/formats"
	"github.com/ajitpratap0/mongobridge/pkg/loader"
	"github.com/ajitpratap0/mongobridge/pkg/logger"
	"github.com/ajitpratap0/mongobridge/pkg/metrics"
	"github.com/ajitpratap0/mongobridge/pkg/migrate"
	"github.com/ajitpratap0/mongobridge/pkg/observability"
	"github.com/ajitpratap0/mongobridge/pkg/source"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Stage names as they appear in reports, spans and metrics
const (
	StageClassify = "classify"
	StageDetect   = "detect"
	StageConnect  = "connect"
	StageLoad     = "load"
	StageMigrate  = "migrate"
)

// maxFailureEvents caps the per-row span events of one migration
const maxFailureEvents = 100

// Classifier resolves a source reference into content
type Classifier interface {
	Classify(ctx context.Context, ref string) (*source.Source, error)
}

// DocumentLoader inserts classified content into the document store
type DocumentLoader interface {
	Load(ctx context.Context, content []byte, det formats.Detection) (*loader.Result, error)
}

// RowMigrator copies the collection into the relational table
type RowMigrator interface {
	Migrate(ctx context.Context, reader migrate.DocumentReader, db migrate.DB) (*migrate.Result, error)
}

// Stores are the store handles Connect opens
type Stores struct {
	Loader DocumentLoader
	Reader migrate.DocumentReader
	DB     migrate.DB
}

// Config wires the stages of a pipeline. Migrator, Reader and DB are
// only needed when the migration stage runs.
type Config struct {
	Source   Classifier
	Loader   DocumentLoader
	Migrator RowMigrator
	Reader   migrate.DocumentReader
	DB       migrate.DB

	// Connect, when set, is called at most once, after detection succeeds
	// or before a migration-only run. The handles it returns fill in
	// whichever of Loader, Reader and DB are unset.
	Connect func(ctx context.Context) (*Stores, error)

	Tracer  *observability.Tracer
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// StageTiming records how long a stage ran
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed,omitempty"`
}

// Report describes one run
type Report struct {
	RunID       string          `json:"run_id"`
	Source      string          `json:"source"`
	Kind        source.Kind     `json:"kind"`
	Compression string          `json:"compression,omitempty"`
	Bytes       int             `json:"bytes"`
	Format      formats.Format  `json:"format,omitempty"`
	Dialect     string          `json:"dialect,omitempty"`
	Parsed      int             `json:"parsed"`
	Loaded      int             `json:"loaded"`
	Migration   *migrate.Result `json:"-"`
	Stages      []StageTiming   `json:"stages"`
	Duration    time.Duration   `json:"duration"`
}

// Partial reports whether the migration left documents behind
func (r *Report) Partial() bool {
	return r.Migration != nil && r.Migration.Partial()
}

// Pipeline runs the stages of a mongobridge run. It is not safe for
// concurrent use.
type Pipeline struct {
	cfg     Config
	tracer  *observability.Tracer
	metrics *metrics.Collector
	logger  *zap.Logger

	loader    DocumentLoader
	reader    migrate.DocumentReader
	db        migrate.DB
	connected bool
}

// New creates a pipeline. A missing tracer records nothing and missing
// metrics go to a private collector.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		tracer:  cfg.Tracer,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		loader:  cfg.Loader,
		reader:  cfg.Reader,
		db:      cfg.DB,
	}
	if p.tracer == nil {
		p.tracer = observability.NoopTracer()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewCollector()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.With(zap.String("component", "pipeline"))
	return p
}

// Run classifies ref, detects its format, loads it and, when a migrator is
// configured, migrates the collection. A source that cannot be classified
// never reaches the loader, and never causes Connect to be called.
func (p *Pipeline) Run(ctx context.Context, ref string) (*Report, error) {
	timer := metrics.NewTimer("run")
	report, ctx := p.newReport(ctx, ref)
	err := p.run(ctx, report)
	return p.finish(ctx, report, timer, err)
}

// Detect classifies ref and detects its format without loading anything.
func (p *Pipeline) Detect(ctx context.Context, ref string) (*Report, error) {
	timer := metrics.NewTimer("detect")
	report, ctx := p.newReport(ctx, ref)
	_, _, err := p.classifyAndDetect(ctx, report)
	return p.finish(ctx, report, timer, err)
}

// Migrate runs only the migration stage over the existing collection.
func (p *Pipeline) Migrate(ctx context.Context) (*Report, error) {
	timer := metrics.NewTimer("migrate")
	report, ctx := p.newReport(ctx, "")
	err := p.connect(ctx, report)
	if err == nil {
		err = p.migrate(ctx, report)
	}
	return p.finish(ctx, report, timer, err)
}

func (p *Pipeline) newReport(ctx context.Context, ref string) (*Report, context.Context) {
	report := &Report{RunID: uuid.NewString(), Source: ref, Kind: source.KindUnrecognized}
	ctx = logger.ContextWith(ctx, logger.RunIDKey, report.RunID)
	if ref != "" {
		ctx = logger.ContextWith(ctx, logger.SourceKey, ref)
	}
	return report, ctx
}

func (p *Pipeline) run(ctx context.Context, report *Report) error {
	src, det, err := p.classifyAndDetect(ctx, report)
	if err != nil {
		return err
	}
	if err := p.connect(ctx, report); err != nil {
		return err
	}

	if err := p.stage(ctx, report, StageLoad, func(ctx context.Context, span *observability.Span) error {
		if p.loader == nil {
			return errors.New(errors.ErrorTypeConfig, "no loader configured")
		}
		res, err := p.loader.Load(ctx, src.Content, det)
		if res != nil {
			report.Parsed = res.Parsed
			report.Loaded = res.Inserted
		}
		span.SetAttribute("records", report.Loaded)
		p.metrics.RecordLoaded(string(report.Format), report.Loaded)
		return err
	}); err != nil {
		return err
	}

	if p.cfg.Migrator != nil {
		return p.migrate(ctx, report)
	}
	return nil
}

func (p *Pipeline) classifyAndDetect(ctx context.Context, report *Report) (*source.Source, formats.Detection, error) {
	var (
		src *source.Source
		det formats.Detection
	)
	err := p.stage(ctx, report, StageClassify, func(ctx context.Context, span *observability.Span) error {
		if p.cfg.Source == nil {
			return errors.New(errors.ErrorTypeConfig, "no source handler configured")
		}
		var err error
		src, err = p.cfg.Source.Classify(ctx, report.Source)
		if src != nil {
			report.Kind = src.Kind
			report.Bytes = len(src.Content)
			if src.Compression != compression.None && src.Compression != "" {
				report.Compression = string(src.Compression)
			}
			span.SetAttribute("kind", string(src.Kind))
			span.SetAttribute("bytes", len(src.Content))
		}
		if err != nil {
			return err
		}
		if src == nil || src.Kind == source.KindUnrecognized {
			return errors.New(errors.ErrorTypeSource, "source is unrecognized").WithDetail("ref", report.Source)
		}
		p.metrics.RecordSource(string(src.Kind), len(src.Content))
		return nil
	})
	if err != nil {
		return nil, det, err
	}

	err = p.stage(ctx, report, StageDetect, func(_ context.Context, span *observability.Span) error {
		det = formats.Detect(src.Content)
		report.Format = det.Format
		span.SetAttribute("format", string(det.Format))
		if det.Format == formats.FormatCSV {
			report.Dialect = det.Dialect.String()
		}
		if det.Format == formats.FormatUnknown {
			return errors.New(errors.ErrorTypeFormat, "content is neither JSON nor CSV").WithDetail("reason", det.Reason)
		}
		return nil
	})
	if err != nil {
		return nil, det, err
	}
	return src, det, nil
}

// connect opens the stores through Config.Connect, once
func (p *Pipeline) connect(ctx context.Context, report *Report) error {
	if p.cfg.Connect == nil || p.connected {
		return nil
	}
	return p.stage(ctx, report, StageConnect, func(ctx context.Context, _ *observability.Span) error {
		stores, err := p.cfg.Connect(ctx)
		if err != nil {
			return err
		}
		p.connected = true
		if stores == nil {
			return nil
		}
		if p.loader == nil {
			p.loader = stores.Loader
		}
		if p.reader == nil {
			p.reader = stores.Reader
		}
		if p.db == nil {
			p.db = stores.DB
		}
		return nil
	})
}

func (p *Pipeline) migrate(ctx context.Context, report *Report) error {
	return p.stage(ctx, report, StageMigrate, func(ctx context.Context, span *observability.Span) error {
		if p.cfg.Migrator == nil || p.reader == nil || p.db == nil {
			return errors.New(errors.ErrorTypeConfig, "migration is not configured")
		}
		res, err := p.cfg.Migrator.Migrate(ctx, p.reader, p.db)
		report.Migration = res
		if res != nil {
			span.SetAttribute("migrated", res.Migrated)
			span.SetAttribute("failed", res.Failed)
			for i, f := range res.Failures {
				if i == maxFailureEvents {
					break
				}
				span.AddEvent("row failed",
					attribute.Int("index", f.Index),
					attribute.String("id", f.ID),
					attribute.String("error.type", string(errors.TypeOf(f.Err))))
			}
			p.metrics.RecordMigrated(res.Migrated, res.Failed)
		}
		return err
	})
}

// stage runs fn as a named, timed and traced stage
func (p *Pipeline) stage(ctx context.Context, report *Report, name string, fn func(context.Context, *observability.Span) error) error {
	log := logger.WithContextFrom(ctx, p.logger).With(zap.String("stage", name))
	log.Debug("stage started")

	d, err := p.tracer.Stage(ctx, name, fn)
	p.metrics.ObserveStage(name, d)
	report.Stages = append(report.Stages, StageTiming{Name: name, Duration: d, Failed: err != nil})

	if err != nil {
		log.Error("stage failed", zap.Duration("duration", d), zap.Error(err))
		return err
	}
	log.Info("stage complete", zap.Duration("duration", d))
	return nil
}

func (p *Pipeline) finish(ctx context.Context, report *Report, timer *metrics.Timer, err error) (*Report, error) {
	report.Duration = timer.Stop()
	p.metrics.RecordRun(err)
	p.metrics.ObserveRun(timer.Name(), report.Duration)

	log := logger.WithContextFrom(ctx, p.logger)
	if err != nil {
		log.Error("run failed", zap.String("error_type", string(errors.TypeOf(err))), zap.Duration("duration", report.Duration))
		return report, err
	}
	log.Info("run complete",
		zap.String("format", string(report.Format)),
		zap.Int("loaded", report.Loaded),
		zap.Duration("duration", report.Duration))
	return report, nil
}
