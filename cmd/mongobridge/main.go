package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/logger"
	"github.com/ajitpratap0/mongobridge/pkg/metrics"
	"github.com/ajitpratap0/mongobridge/pkg/observability"
)

var version = "0.1.0"

// closeTimeout bounds connector teardown
const closeTimeout = 5 * time.Second

// GlobalFlags are shared by every command
type GlobalFlags struct {
	ConfigFile   string
	LogLevel     string
	LogFormat    string
	MetricsFile  string
	Trace        bool
	AllowPartial bool
}

// app holds what a command needs once flags and configuration are resolved
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Collector
	tracer  *observability.Tracer

	closers []io.Closer
}

func main() {
	config.LoadDotEnv()

	flags := &GlobalFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:   "mongobridge",
		Short: "mongobridge - load JSON or CSV into MongoDB and migrate it to MySQL",
		Long: `mongobridge reads a local file or an https source, detects whether it is
JSON or CSV, loads the records into a MongoDB collection and copies the
collection into a MySQL table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigFile, "config", "c", "", "Path to a YAML configuration file")
	pf.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.LogFormat, "log-format", "", "Log encoding (json, console)")
	pf.StringVar(&flags.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile when the command ends")
	pf.BoolVar(&flags.Trace, "trace", false, "Export one span per pipeline stage")
	pf.BoolVar(&flags.AllowPartial, "allow-partial", false, "Exit zero even when some documents failed to migrate")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// no configuration needed
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mongobridge v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(
		runCommand(a, flags),
		loadCommand(a),
		migrateCommand(a, flags),
		detectCommand(a),
		pingCommand(a),
		collectionsCommand(a),
		columnsCommand(a),
		dumpCommand(a),
		configCommand(a),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = a.teardown()
		os.Exit(exitCode(err))
	}
}

// setup loads configuration, applies flag overrides and builds the logger,
// metrics and tracer.
func (a *app) setup(flags *GlobalFlags) error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "configuration error")
	}
	if flags.LogLevel != "" {
		cfg.Observability.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.Observability.LogFormat = flags.LogFormat
	}
	if flags.MetricsFile != "" {
		cfg.Observability.MetricsFile = flags.MetricsFile
	}
	if flags.Trace {
		cfg.Observability.EnableTracing = true
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    cfg.Observability.LogFormat,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}

	tc, closer, err := observability.TracingConfigFrom(cfg.Observability, version)
	if err != nil {
		return err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	tracer, err := observability.NewTracer(tc)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger.With(zap.String("component", "mongobridge-cli"))
	a.metrics = metrics.NewCollector()
	a.tracer = tracer
	return nil
}

// teardown flushes traces and metrics and closes trace output. It is safe
// to call more than once.
func (a *app) teardown() error {
	if a.cfg == nil {
		return nil
	}
	var firstErr error
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
			firstErr = err
		}
	}
	if path := a.cfg.Observability.MetricsFile; path != "" && a.metrics != nil {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("failed to write metrics", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
	a.metrics = nil
	_ = logger.Sync()
	return firstErr
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	var partial *partialMigrationError
	if errors.As(err, &partial) {
		return 3
	}
	switch errors.TypeOf(err) {
	case errors.ErrorTypeConfig, errors.ErrorTypeValidation:
		return 2
	default:
		return 1
	}
}
