// Package migrate copies the documents of a collection into a relational
// table, one parameterized INSERT per document inside a single
// transaction.
package migrate

import (
	"context"
	"database/sql"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/models"
	"github.com/ajitpratap0/mongobridge/pkg/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// DocumentReader returns every document of a collection
type DocumentReader interface {
	FindAll(ctx context.Context) ([]bson.M, error)
}

// DB is the part of *sql.DB the migrator uses
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Options configures a migration
type Options struct {
	Table    string
	IDField  string
	IDLength int
	// Columns declares the table; inferred from the documents when empty
	Columns []config.ColumnConfig
	// SampleSize bounds the documents used for inference, 0 means all
	SampleSize int
}

// OptionsFromConfig builds Options from the migration and mysql sections
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Table:      cfg.MySQL.Table,
		IDField:    cfg.Migration.IDField,
		IDLength:   cfg.Migration.IDLength,
		Columns:    cfg.Migration.Columns,
		SampleSize: cfg.Migration.SampleSize,
	}
}

// RowError records a document that could not be inserted
type RowError struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Err   error  `json:"-"`
}

func (e RowError) Error() string {
	return e.Err.Error()
}

// Result summarizes a migration. Failed rows do not abort the
// transaction; Migrated counts the rows committed.
type Result struct {
	Table     string
	Read      int
	Migrated  int
	Failed    int
	Truncated int
	Failures  []RowError
	Schema    *models.Schema
	Duration  time.Duration
}

// Partial reports whether some documents were not migrated
func (r *Result) Partial() bool {
	return r.Failed > 0
}

// Migrator moves documents into a relational table
type Migrator struct {
	opts   Options
	logger *zap.Logger
}

// New creates a migrator
func New(opts Options, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.IDField == "" {
		opts.IDField = config.DefaultIDField
	}
	if opts.IDLength <= 0 {
		opts.IDLength = config.DefaultIDLength
	}
	return &Migrator{
		opts:   opts,
		logger: logger.With(zap.String("component", "migrator"), zap.String("table", opts.Table)),
	}
}

// Migrate reads every document from reader, creates the table when it
// does not exist and inserts one row per document in a single
// transaction. Per-document failures are recorded in the result and do
// not stop the loop; failures to begin or commit roll everything back.
func (m *Migrator) Migrate(ctx context.Context, reader DocumentReader, db DB) (*Result, error) {
	start := time.Now()
	result := &Result{Table: m.opts.Table}

	docs, err := reader.FindAll(ctx)
	if err != nil {
		m.logger.Error("failed to read documents", zap.Error(err))
		return result, wrapQuery(err, "failed to read documents")
	}
	result.Read = len(docs)

	records := make([]models.Record, len(docs))
	convErrs := make([]error, len(docs))
	for i, doc := range docs {
		records[i], convErrs[i] = ToRecord(doc, m.opts.IDField)
	}

	tableSchema, err := m.resolveSchema(docs, convErrs)
	if err != nil {
		m.logger.Error("cannot determine table columns", zap.Error(err))
		return result, err
	}
	if tableSchema == nil {
		m.logger.Warn("no documents and no declared columns, nothing to migrate")
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Schema = tableSchema

	ddl, err := CreateTableSQL(tableSchema)
	if err != nil {
		m.logger.Error("invalid table definition", zap.Error(err))
		return result, err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		m.logger.Error("failed to create table", zap.Error(err))
		return result, errors.Wrap(err, errors.ErrorTypeQuery, "failed to create table").WithDetail("table", m.opts.Table)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("failed to begin transaction", zap.Error(err))
		return result, errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin transaction")
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			_ = tx.Rollback()
			result.Migrated = 0
			return result, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "migration cancelled")
		}

		id, truncated := EncodeID(docs[i][m.opts.IDField], m.opts.IDLength)
		if convErrs[i] != nil {
			m.fail(result, i, id, convErrs[i])
			continue
		}
		if truncated {
			result.Truncated++
			m.logger.Warn("identifier truncated",
				zap.Int("index", i),
				zap.Int("length", m.opts.IDLength),
				zap.String("key", id))
		}
		if _, ok := rec[m.opts.IDField]; ok {
			rec[m.opts.IDField] = id
		}

		NullBlanks(tableSchema, rec)
		if verrs := schema.ValidateRecord(rec, tableSchema); len(verrs) > 0 {
			m.fail(result, i, id, errors.New(errors.ErrorTypeValidation, schema.JoinErrors(verrs)))
			continue
		}

		columns, args := rowArgs(tableSchema, rec)
		stmt, err := InsertSQL(tableSchema.Name, columns)
		if err != nil {
			m.fail(result, i, id, err)
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			m.fail(result, i, id, errors.Wrap(err, errors.ErrorTypeQuery, "insert failed"))
			continue
		}
		result.Migrated++
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		m.logger.Error("failed to commit migration", zap.Error(err))
		result.Migrated = 0
		return result, errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit migration")
	}

	result.Duration = time.Since(start)
	m.logger.Info("migration committed",
		zap.Int("read", result.Read),
		zap.Int("migrated", result.Migrated),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (m *Migrator) fail(result *Result, index int, id string, err error) {
	result.Failed++
	result.Failures = append(result.Failures, RowError{Index: index, ID: id, Err: err})
	m.logger.Error("document not migrated",
		zap.Int("index", index),
		zap.String("id", id),
		zap.Error(err))
}

// resolveSchema returns the declared columns, or columns inferred from the
// convertible documents. It returns nil when there is nothing to go on.
func (m *Migrator) resolveSchema(docs []bson.M, convErrs []error) (*models.Schema, error) {
	if len(m.opts.Columns) > 0 {
		return DeclaredSchema(m.opts.Table, m.opts.IDField, m.opts.IDLength, m.opts.Columns)
	}

	samples := make([]models.Record, 0, len(docs))
	for i, d := range docs {
		if convErrs[i] == nil {
			samples = append(samples, models.Record(d))
		}
	}
	if len(samples) == 0 {
		return nil, nil
	}

	engine := schema.NewTypeInferenceEngine(m.logger).WithSampleSize(m.opts.SampleSize)
	s, err := engine.InferSchema(m.opts.Table, m.opts.IDField, m.opts.IDLength, samples)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to infer columns")
	}
	return s, nil
}

// rowArgs returns the schema columns present in rec, in schema order, with
// their values.
func rowArgs(s *models.Schema, rec models.Record) ([]string, []interface{}) {
	columns := make([]string, 0, len(rec))
	args := make([]interface{}, 0, len(rec))
	for _, f := range s.Fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, f.Name)
		args = append(args, v)
	}
	return columns, args
}

func wrapQuery(err error, msg string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeQuery, msg)
}
