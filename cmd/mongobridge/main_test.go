package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ajitpratap0/mongobridge/internal/pipeline"
	"github.com/ajitpratap0/mongobridge/pkg/compression"
	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/migrate"
	"github.com/ajitpratap0/mongobridge/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

type docSlice []bson.M

func (d docSlice) Each(_ context.Context, fn func(bson.M) error) error {
	for _, doc := range d {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func TestDumpCollection_JSONLines(t *testing.T) {
	id := primitive.NewObjectID()
	docs := docSlice{
		{"_id": id, "title": "Carbonara"},
		{"_id": primitive.NewObjectID(), "title": "Amatriciana"},
	}

	var out bytes.Buffer
	require.NoError(t, dumpCollection(context.Background(), docs, &out, compression.None))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], id.Hex())
	assert.Contains(t, lines[0], `"title":"Carbonara"`)
}

func TestDumpCollection_Gzip(t *testing.T) {
	docs := docSlice{{"title": "Gricia"}}

	var out bytes.Buffer
	require.NoError(t, dumpCollection(context.Background(), docs, &out, compression.Gzip))

	zr, err := gzip.NewReader(&out)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "{\"title\":\"Gricia\"}\n", string(plain))
}

func TestCheckPartial(t *testing.T) {
	report := &pipeline.Report{Migration: &migrate.Result{Table: "pomodoro", Read: 3, Migrated: 2, Failed: 1}}

	err := checkPartial(report, false)
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))
	assert.Contains(t, err.Error(), "1 of 3")

	assert.NoError(t, checkPartial(report, true))
	assert.NoError(t, checkPartial(&pipeline.Report{}, false))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(errors.New(errors.ErrorTypeConfig, "bad")))
	assert.Equal(t, 2, exitCode(errors.New(errors.ErrorTypeValidation, "bad")))
	assert.Equal(t, 1, exitCode(errors.New(errors.ErrorTypeSource, "missing")))
	assert.Equal(t, 1, exitCode(io.EOF))
}

// offlineApp has no credentials for either store, so any connection
// attempt fails.
func offlineApp(t *testing.T) *app {
	cfg := config.Default()
	cfg.Mongo.ClusterName = ""
	cfg.Mongo.Username = ""
	cfg.Mongo.Password = ""
	return &app{cfg: cfg, log: zaptest.NewLogger(t)}
}

func TestRunPipeline_RefusedSourceNeverConnects(t *testing.T) {
	a := offlineApp(t)

	err := a.runPipeline(context.Background(), "not-a-path", true, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSource), "got %v", err)

	prose := testutil.WriteFile(t, "notes.txt", []byte("just one line of prose"))
	err = a.runPipeline(context.Background(), prose, true, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat), "got %v", err)
}

func TestStoreSet_CloseWithoutOpen(t *testing.T) {
	s := &storeSet{app: offlineApp(t), relational: true}
	assert.NotPanics(t, s.close)
	assert.NotPanics(t, func() { s.logCollectionSize(context.Background()) })
}
