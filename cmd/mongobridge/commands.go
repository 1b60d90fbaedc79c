package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongobridge/internal/pipeline"
	"github.com/ajitpratap0/mongobridge/pkg/clients"
	"github.com/ajitpratap0/mongobridge/pkg/compression"
	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/connector/mongodb"
	"github.com/ajitpratap0/mongobridge/pkg/connector/mysql"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/json"
	"github.com/ajitpratap0/mongobridge/pkg/loader"
	"github.com/ajitpratap0/mongobridge/pkg/logger"
	"github.com/ajitpratap0/mongobridge/pkg/migrate"
	"github.com/ajitpratap0/mongobridge/pkg/source"
)

// partialMigrationError reports a migration that left documents behind
type partialMigrationError struct {
	table  string
	failed int
	read   int
}

func (e *partialMigrationError) Error() string {
	return fmt.Sprintf("%d of %d documents were not migrated into %s", e.failed, e.read, e.table)
}

func runCommand(a *app, flags *GlobalFlags) *cobra.Command {
	var noMigrate bool
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Load a source into MongoDB and migrate it to MySQL",
		Long: `Run classifies the source, detects its format, loads every record into
the configured collection and copies the collection into the configured table.

Example:
  mongobridge run https://example.com/pasta.json
  mongobridge run ./pasta.csv.gz --config mongobridge.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			migrateAfter := a.cfg.Migration.Enabled && !noMigrate
			return a.runPipeline(cmd.Context(), args[0], migrateAfter, flags.AllowPartial)
		},
	}
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "Skip the MySQL migration")
	return cmd
}

func loadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <source>",
		Short: "Load a source into MongoDB without migrating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), args[0], false, true)
		},
	}
}

func migrateCommand(a *app, flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy the configured collection into the configured MySQL table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			stores := &storeSet{app: a, relational: true}
			defer stores.close()

			p := pipeline.New(pipeline.Config{
				Migrator: migrate.New(migrate.OptionsFromConfig(a.cfg), logger.Get()),
				Connect:  stores.open,
				Tracer:   a.tracer,
				Metrics:  a.metrics,
				Logger:   logger.Get(),
			})
			report, err := p.Migrate(ctx)
			if report != nil {
				printReport(report)
			}
			if err != nil {
				return err
			}
			return checkPartial(report, flags.AllowPartial)
		},
	}
}

func detectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <source>",
		Short: "Classify a source and detect its format without loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			handler, client := a.sourceHandler()
			defer client.Close()

			report, err := pipeline.New(pipeline.Config{
				Source:  handler,
				Tracer:  a.tracer,
				Metrics: a.metrics,
				Logger:  logger.Get(),
			}).Detect(ctx, args[0])
			if report != nil {
				printReport(report)
			}
			return err
		},
	}
}

func pingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect to MongoDB and list its databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			store := mongodb.New(a.cfg, logger.Get())
			if err := store.Connect(ctx); err != nil {
				return err
			}
			defer closeStore(store)

			names, err := store.ListDatabases(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Connected. Databases:")
			for _, name := range names {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}

func collectionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections of the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			store := mongodb.New(a.cfg, logger.Get())
			if err := store.Connect(ctx); err != nil {
				return err
			}
			defer closeStore(store)

			names, err := store.ListCollections(ctx, a.cfg.Mongo.Database)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func columnsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Print the field names found in the configured collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			store := mongodb.New(a.cfg, logger.Get())
			if err := store.Connect(ctx); err != nil {
				return err
			}
			defer closeStore(store)

			names, err := store.SampleFields(ctx, a.cfg.Mongo.Database, a.cfg.Mongo.Collection, limit)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", config.DefaultSampleSize, "Number of documents to sample")
	return cmd
}

func dumpCommand(a *app) *cobra.Command {
	var output, compress string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write every document of the configured collection as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := compression.ParseAlgorithm(compress)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeValidation, "invalid --compress value")
			}

			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			store, coll, err := a.openCollection(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			var dst io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrap(err, errors.ErrorTypeFile, "failed to create dump file").WithDetail("path", output)
				}
				defer f.Close()
				dst = f
			}
			return dumpCollection(ctx, coll, dst, alg)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "File to write, - for stdout")
	cmd.Flags().StringVar(&compress, "compress", "none", "Compress the output (none, gzip, zstd, lz4)")
	return cmd
}

// documentSource is the part of a collection dump reads
type documentSource interface {
	Each(ctx context.Context, fn func(bson.M) error) error
}

// dumpCollection writes every document of coll to dst, one JSON object per
// line.
func dumpCollection(ctx context.Context, coll documentSource, dst io.Writer, alg compression.Algorithm) error {
	w, err := compression.NewWriter(alg, dst)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "unsupported compression")
	}
	enc := json.NewLineEncoder(w)

	count := 0
	err = coll.Each(ctx, func(doc bson.M) error {
		count++
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode document")
		}
		return nil
	})
	if cerr := w.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to flush dump")
	}
	if err != nil {
		return err
	}
	logger.Get().Info("collection dumped", zap.Int("documents", count), zap.String("compression", string(alg)))
	return nil
}

func configCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Marshal(a.cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	})
	return cmd
}

// runPipeline runs the whole pipeline over ref
func (a *app) runPipeline(parent context.Context, ref string, migrateAfter, allowPartial bool) error {
	ctx, cancel := a.runContext(parent)
	defer cancel()
	ctx = logger.ContextWith(ctx, logger.CollectionKey, a.cfg.Mongo.Collection)

	handler, client := a.sourceHandler()
	defer client.Close()

	// Stores are opened by the pipeline once the source is known to be usable
	stores := &storeSet{app: a, relational: migrateAfter}
	defer stores.close()

	pc := pipeline.Config{
		Source:  handler,
		Connect: stores.open,
		Tracer:  a.tracer,
		Metrics: a.metrics,
		Logger:  logger.Get(),
	}
	if migrateAfter {
		pc.Migrator = migrate.New(migrate.OptionsFromConfig(a.cfg), logger.Get())
	}

	a.log.Info("starting run",
		zap.String("source", ref),
		zap.String("database", a.cfg.Mongo.Database),
		zap.String("collection", a.cfg.Mongo.Collection),
		zap.Bool("migrate", migrateAfter))

	report, err := pipeline.New(pc).Run(ctx, ref)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return err
	}
	stores.logCollectionSize(ctx)
	return checkPartial(report, allowPartial)
}

// storeSet opens the document store, and the relational store when
// relational is set, on the pipeline's request and closes whatever was
// opened.
type storeSet struct {
	app        *app
	relational bool

	store *mongodb.Connector
	coll  *mongodb.Collection
	rel   *mysql.Connector
}

func (s *storeSet) open(ctx context.Context) (*pipeline.Stores, error) {
	store, coll, err := s.app.openCollection(ctx)
	if err != nil {
		return nil, err
	}
	s.store, s.coll = store, coll
	stores := &pipeline.Stores{Loader: loader.New(coll, logger.Get()), Reader: coll}

	if s.relational {
		rel, err := s.app.openMySQL(ctx)
		if err != nil {
			return nil, err
		}
		s.rel = rel
		db, err := rel.DB()
		if err != nil {
			return nil, err
		}
		stores.DB = db
	}
	return stores, nil
}

// logCollectionSize logs how many documents the collection holds
func (s *storeSet) logCollectionSize(ctx context.Context) {
	if s.coll == nil {
		return
	}
	n, err := s.coll.Count(ctx)
	if err != nil {
		s.app.log.Warn("failed to count documents", zap.Error(err))
		return
	}
	s.app.log.Info("collection size",
		zap.String("collection", s.coll.Name()),
		zap.Int64("documents", n))
}

func (s *storeSet) close() {
	if s.rel != nil {
		_ = s.rel.Close()
	}
	if s.store != nil {
		closeStore(s.store)
	}
}

// runContext bounds ctx by the configured run timeout
func (a *app) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if a.cfg.Timeouts.Run > 0 {
		return context.WithTimeout(parent, a.cfg.Timeouts.Run)
	}
	return context.WithCancel(parent)
}

// sourceHandler builds the source handler and the HTTP client behind it.
// The caller closes the client.
func (a *app) sourceHandler() (*source.Handler, *clients.HTTPClient) {
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.BearerToken = a.cfg.Source.BearerToken
	httpCfg.MaxBytes = a.cfg.Source.MaxBytes
	if a.cfg.Timeouts.Request > 0 {
		httpCfg.RequestTimeout = a.cfg.Timeouts.Request
	}
	if a.cfg.Timeouts.Connection > 0 {
		httpCfg.DialTimeout = a.cfg.Timeouts.Connection
	}
	client := clients.NewHTTPClient(httpCfg, logger.Get())

	handler := source.NewHandler(client, source.Options{
		Decompress: a.cfg.Source.Decompress,
		MaxBytes:   a.cfg.Source.MaxBytes,
	}, logger.Get())
	return handler, client
}

// openCollection connects to MongoDB and returns the configured collection.
// The caller closes the connector.
func (a *app) openCollection(ctx context.Context) (*mongodb.Connector, *mongodb.Collection, error) {
	store := mongodb.New(a.cfg, logger.Get())
	if err := store.Connect(ctx); err != nil {
		return nil, nil, err
	}
	coll, err := store.Collection(a.cfg.Mongo.Database, a.cfg.Mongo.Collection)
	if err != nil {
		closeStore(store)
		return nil, nil, err
	}
	return store, coll, nil
}

// openMySQL connects to MySQL and selects the configured database, creating
// it when missing. The caller closes the connector.
func (a *app) openMySQL(ctx context.Context) (*mysql.Connector, error) {
	if err := a.cfg.MySQL.ValidateMySQL(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "incomplete relational store settings")
	}
	rel := mysql.New(a.cfg, logger.Get())
	if err := rel.Connect(ctx); err != nil {
		return nil, err
	}
	if err := rel.CreateDatabase(ctx, a.cfg.MySQL.Database); err != nil {
		_ = rel.Close()
		return nil, err
	}
	if err := rel.SelectDatabase(ctx, a.cfg.MySQL.Database); err != nil {
		_ = rel.Close()
		return nil, err
	}
	return rel, nil
}

func closeStore(store *mongodb.Connector) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = store.Close(ctx)
}

// checkPartial turns a partial migration into an error unless allowed
func checkPartial(report *pipeline.Report, allowPartial bool) error {
	if !report.Partial() || allowPartial {
		return nil
	}
	m := report.Migration
	return &partialMigrationError{table: m.Table, failed: m.Failed, read: m.Read}
}

// printReport writes a one-line JSON summary of report to stdout
func printReport(report *pipeline.Report) {
	summary := map[string]interface{}{
		"run_id":   report.RunID,
		"source":   report.Source,
		"kind":     report.Kind,
		"format":   report.Format,
		"parsed":   report.Parsed,
		"loaded":   report.Loaded,
		"stages":   report.Stages,
		"duration": report.Duration.String(),
	}
	if report.Dialect != "" {
		summary["dialect"] = report.Dialect
	}
	if report.Compression != "" {
		summary["compression"] = report.Compression
	}
	if m := report.Migration; m != nil {
		summary["migration"] = map[string]interface{}{
			"table":     m.Table,
			"read":      m.Read,
			"migrated":  m.Migrated,
			"failed":    m.Failed,
			"truncated": m.Truncated,
			"failures":  m.Failures,
		}
	}
	_ = json.NewLineEncoder(os.Stdout).Encode(summary)
}
