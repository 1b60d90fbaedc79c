// Package mongobridge loads a JSON or CSV data file into a MongoDB
// collection and migrates the stored documents into a MySQL table.
//
// A run is strictly sequential. Each stage completes before the next one
// starts, and the first failing stage ends the run with a typed error.
//
// # Architecture
//
// A run passes through four stages:
//
// 1. Classify: a reference starting with "https:" is fetched in one GET;
// an existing path is read from disk; anything else is unrecognized and
// no I/O beyond the existence check happens. Gzip, zstd and lz4 payloads
// are decompressed transparently.
//
// 2. Detect: content that parses as JSON is JSON. Otherwise the first
// 1024 bytes are sniffed for a CSV delimiter. Anything else is unknown
// and is never loaded.
//
// 3. Load: the records are parsed and inserted into the collection in a
// single bulk call.
//
// 4. Migrate: every document is read back and inserted as one row inside
// a single transaction. The ObjectID becomes a 24 character hex key.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/mongobridge/internal/pipeline"
//	    "github.com/ajitpratap0/mongobridge/pkg/config"
//	    "github.com/ajitpratap0/mongobridge/pkg/connector/mongodb"
//	    "github.com/ajitpratap0/mongobridge/pkg/loader"
//	    "github.com/ajitpratap0/mongobridge/pkg/source"
//	)
//
//	cfg, _ := config.Load("mongobridge.yaml")
//	store := mongodb.New(cfg, logger)
//	_ = store.Connect(ctx)
//	defer store.Close(ctx)
//
//	coll, _ := store.Collection(cfg.Mongo.Database, cfg.Mongo.Collection)
//	p := pipeline.New(pipeline.Config{
//	    Source: source.NewHandler(httpClient, source.Options{Decompress: true}, logger),
//	    Loader: loader.New(coll, logger),
//	    Logger: logger,
//	})
//	report, err := p.Run(context.Background(), "./pasta.json")
//
// # Key Packages
//
//	pkg/source              - Source classification and resolution
//	pkg/formats             - JSON and CSV detection
//	pkg/loader              - Record parsing and bulk insert
//	pkg/migrate             - Document to row migration
//	pkg/connector/mongodb   - MongoDB connection and collections
//	pkg/connector/mysql     - MySQL connection and databases
//	pkg/config              - Configuration from YAML and the environment
//	pkg/errors              - Structured error handling
//	pkg/logger              - Structured logging
//	pkg/metrics             - Prometheus run metrics
//	pkg/observability       - OpenTelemetry stage tracing
//
// # Configuration
//
// Built-in defaults are overridden by an optional YAML file and then by
// MONGOBRIDGE_* environment variables. MONGO_USERNAME, MONGO_PASSWORD and
// MONGO_CLUSTERNAME are honored for the document store credentials. A .env
// file in the working directory is loaded first.
//
// # Command Line
//
//	mongobridge run ./pasta.csv        # classify, detect, load, migrate
//	mongobridge detect https://...     # classify and detect only
//	mongobridge migrate                # migrate the existing collection
//	mongobridge dump --compress zstd   # collection as JSON lines
//	mongobridge config show            # resolved configuration, redacted
package mongobridge
