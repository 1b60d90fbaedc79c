package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/clients"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/formats"
	"github.com/ajitpratap0/mongobridge/pkg/loader"
	"github.com/ajitpratap0/mongobridge/pkg/metrics"
	"github.com/ajitpratap0/mongobridge/pkg/migrate"
	"github.com/ajitpratap0/mongobridge/pkg/models"
	"github.com/ajitpratap0/mongobridge/pkg/observability"
	"github.com/ajitpratap0/mongobridge/pkg/source"
	"github.com/ajitpratap0/mongobridge/pkg/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	_ "modernc.org/sqlite"
)

// memoryCollection stands in for the document store collection
type memoryCollection struct {
	docs []bson.M
}

func (c *memoryCollection) InsertMany(_ context.Context, docs []interface{}) (int, error) {
	for _, d := range docs {
		rec := d.(models.Record)
		doc := bson.M{"_id": primitive.NewObjectID()}
		for k, v := range rec {
			doc[k] = v
		}
		c.docs = append(c.docs, doc)
	}
	return len(docs), nil
}

func (c *memoryCollection) FindAll(context.Context) ([]bson.M, error) {
	return c.docs, nil
}

type countingLoader struct {
	calls int
}

func (l *countingLoader) Load(context.Context, []byte, formats.Detection) (*loader.Result, error) {
	l.calls++
	return &loader.Result{}, nil
}

type fixedMigrator struct {
	result *migrate.Result
	err    error
}

func (m fixedMigrator) Migrate(context.Context, migrate.DocumentReader, migrate.DB) (*migrate.Result, error) {
	return m.result, m.err
}

// storeOpener counts how often the pipeline asks for its stores
type storeOpener struct {
	stores *Stores
	err    error
	calls  int
}

func (o *storeOpener) open(context.Context) (*Stores, error) {
	o.calls++
	return o.stores, o.err
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func stageNames(r *Report) []string {
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name
	}
	return names
}

func TestRun_LocalJSONEndToEnd(t *testing.T) {
	logger := testutil.TestLogger(t)
	path := testutil.WriteFile(t, "pasta.json", testutil.PastaJSON(3))
	coll := &memoryCollection{}
	db := openDB(t)
	m := metrics.NewCollector()

	p := New(Config{
		Source:   source.NewHandler(nil, source.Options{}, logger),
		Loader:   loader.New(coll, logger),
		Migrator: migrate.New(migrate.Options{Table: "pasta"}, logger),
		Reader:   coll,
		DB:       db,
		Metrics:  m,
		Logger:   logger,
	})

	report, err := p.Run(testutil.TestContext(t), path)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, source.KindLocal, report.Kind)
	assert.Equal(t, formats.FormatJSON, report.Format)
	assert.Equal(t, 3, report.Parsed)
	assert.Equal(t, 3, report.Loaded)
	require.NotNil(t, report.Migration)
	assert.Equal(t, 3, report.Migration.Migrated)
	assert.False(t, report.Partial())
	assert.Equal(t, []string{StageClassify, StageDetect, StageLoad, StageMigrate}, stageNames(report))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM `pasta`").Scan(&n))
	assert.Equal(t, 3, n)

	stages, err := promtest.GatherAndCount(m.Registry(), "mongobridge_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, stages)
	runs, err := promtest.GatherAndCount(m.Registry(), "mongobridge_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	wall, err := promtest.GatherAndCount(m.Registry(), "mongobridge_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, wall)

	var stageSum time.Duration
	for _, s := range report.Stages {
		stageSum += s.Duration
	}
	assert.GreaterOrEqual(t, report.Duration, stageSum)
}

func TestRun_CSVKeepsDialect(t *testing.T) {
	logger := testutil.TestLogger(t)
	path := testutil.WriteFile(t, "pasta.csv", testutil.PastaCSV(2, ";"))
	coll := &memoryCollection{}

	report, err := New(Config{
		Source: source.NewHandler(nil, source.Options{}, logger),
		Loader: loader.New(coll, logger),
		Logger: logger,
	}).Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, formats.FormatCSV, report.Format)
	assert.NotEmpty(t, report.Dialect)
	assert.Equal(t, 2, report.Loaded)
	assert.Len(t, coll.docs, 2)
	assert.Nil(t, report.Migration, "no migrator configured")
}

func TestRun_Remote404NeverReachesLoader(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	logger := testutil.TestLogger(t)
	cfg := clients.DefaultHTTPConfig()
	cfg.InsecureSkipVerify = true
	client := clients.NewHTTPClient(cfg, logger)
	defer client.Close()

	ld := &countingLoader{}
	m := metrics.NewCollector()
	report, err := New(Config{
		Source:  source.NewHandler(client, source.Options{}, logger),
		Loader:  ld,
		Metrics: m,
		Logger:  logger,
	}).Run(context.Background(), srv.URL+"/gone.json")

	require.Error(t, err)
	assert.Equal(t, 0, ld.calls)
	assert.Equal(t, source.KindUnrecognized, report.Kind)
	assert.Equal(t, []string{StageClassify}, stageNames(report))
	assert.True(t, report.Stages[0].Failed)

	loaded, err := promtest.GatherAndCount(m.Registry(), "mongobridge_records_loaded_total")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded)
}

func TestRun_UnrecognizedPathNeverReachesLoader(t *testing.T) {
	ld := &countingLoader{}
	report, err := New(Config{
		Source: source.NewHandler(nil, source.Options{}, nil),
		Loader: ld,
	}).Run(context.Background(), filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSource))
	assert.Equal(t, 0, ld.calls)
	assert.Equal(t, source.KindUnrecognized, report.Kind)
}

func TestRun_UnknownFormatStopsBeforeLoad(t *testing.T) {
	path := testutil.WriteFile(t, "notes.txt", []byte("just one line of prose"))
	ld := &countingLoader{}

	report, err := New(Config{
		Source: source.NewHandler(nil, source.Options{}, nil),
		Loader: ld,
	}).Run(context.Background(), path)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
	assert.Equal(t, 0, ld.calls)
	assert.Equal(t, formats.FormatUnknown, report.Format)
	assert.Equal(t, []string{StageClassify, StageDetect}, stageNames(report))
}

func TestDetect_DoesNotLoad(t *testing.T) {
	path := testutil.WriteFile(t, "pasta.json", testutil.PastaJSON(1))
	ld := &countingLoader{}

	report, err := New(Config{
		Source: source.NewHandler(nil, source.Options{}, nil),
		Loader: ld,
	}).Detect(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, formats.FormatJSON, report.Format)
	assert.Equal(t, 0, ld.calls)
}

func TestMigrate_ReportsPartialResult(t *testing.T) {
	partial := &migrate.Result{Table: "pasta", Read: 3, Migrated: 2, Failed: 1}
	m := metrics.NewCollector()

	report, err := New(Config{
		Migrator: fixedMigrator{result: partial},
		Reader:   &memoryCollection{},
		DB:       openDB(t),
		Metrics:  m,
	}).Migrate(context.Background())

	require.NoError(t, err)
	assert.True(t, report.Partial())
	assert.Equal(t, []string{StageMigrate}, stageNames(report))

	rows, err := promtest.GatherAndCount(m.Registry(), "mongobridge_rows_migrated_total")
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "migrated and failed series")
}

func TestMigrate_NotConfigured(t *testing.T) {
	_, err := New(Config{}).Migrate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRun_StoresOpenedOnlyAfterDetection(t *testing.T) {
	logger := testutil.TestLogger(t)
	handler := source.NewHandler(nil, source.Options{}, logger)

	t.Run("unrecognized source", func(t *testing.T) {
		opener := &storeOpener{err: fmt.Errorf("connection refused")}
		_, err := New(Config{Source: handler, Connect: opener.open, Logger: logger}).
			Run(context.Background(), "not-a-path")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeSource))
		assert.Zero(t, opener.calls)
	})

	t.Run("unknown format", func(t *testing.T) {
		path := testutil.WriteFile(t, "notes.txt", []byte("just one line of prose"))
		opener := &storeOpener{err: fmt.Errorf("connection refused")}
		report, err := New(Config{Source: handler, Connect: opener.open, Logger: logger}).
			Run(context.Background(), path)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
		assert.Zero(t, opener.calls)
		assert.Equal(t, []string{StageClassify, StageDetect}, stageNames(report))
	})

	t.Run("connection failure after detection", func(t *testing.T) {
		path := testutil.WriteFile(t, "pasta.json", testutil.PastaJSON(1))
		opener := &storeOpener{err: errors.New(errors.ErrorTypeConnection, "connection refused")}
		report, err := New(Config{Source: handler, Connect: opener.open, Logger: logger}).
			Run(context.Background(), path)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
		assert.Equal(t, 1, opener.calls)
		assert.Equal(t, []string{StageClassify, StageDetect, StageConnect}, stageNames(report))
	})

	t.Run("stores used once opened", func(t *testing.T) {
		path := testutil.WriteFile(t, "pasta.json", testutil.PastaJSON(2))
		coll := &memoryCollection{}
		db := openDB(t)
		opener := &storeOpener{stores: &Stores{Loader: loader.New(coll, logger), Reader: coll, DB: db}}

		report, err := New(Config{
			Source:   handler,
			Migrator: migrate.New(migrate.Options{Table: "pasta"}, logger),
			Connect:  opener.open,
			Logger:   logger,
		}).Run(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 1, opener.calls)
		assert.Equal(t, []string{StageClassify, StageDetect, StageConnect, StageLoad, StageMigrate}, stageNames(report))
		assert.Len(t, coll.docs, 2)
		require.NotNil(t, report.Migration)
		assert.Equal(t, 2, report.Migration.Migrated)
	})
}

func TestMigrate_ConnectsBeforeMigrating(t *testing.T) {
	opener := &storeOpener{stores: &Stores{Reader: &memoryCollection{}, DB: openDB(t)}}
	p := New(Config{
		Migrator: fixedMigrator{result: &migrate.Result{Table: "pasta"}},
		Connect:  opener.open,
	})

	report, err := p.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StageConnect, StageMigrate}, stageNames(report))

	_, err = p.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, opener.calls, "stores are opened once per pipeline")
}

func TestMigrate_FailedRowsBecomeSpanEvents(t *testing.T) {
	var out bytes.Buffer
	tracer, err := observability.NewTracer(observability.TracingConfig{
		Enabled:     true,
		ServiceName: "mongobridge-test",
		Output:      &out,
	})
	require.NoError(t, err)

	partial := &migrate.Result{
		Table:    "pasta",
		Read:     2,
		Migrated: 1,
		Failed:   1,
		Failures: []migrate.RowError{{Index: 1, ID: "65f0c0ffee", Err: errors.New(errors.ErrorTypeQuery, "duplicate key")}},
	}
	_, err = New(Config{
		Migrator: fixedMigrator{result: partial},
		Reader:   &memoryCollection{},
		DB:       openDB(t),
		Tracer:   tracer,
	}).Migrate(context.Background())
	require.NoError(t, err)
	require.NoError(t, tracer.Shutdown(context.Background()))

	exported := out.String()
	assert.Contains(t, exported, "stage.migrate")
	assert.Contains(t, exported, "row failed")
	assert.Contains(t, exported, "65f0c0ffee")
}
